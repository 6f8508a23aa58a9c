package analyzer

// Reduce buckets issues by severity and computes the weighted score.
func Reduce(issues []Issue) Aggregate {
	var a Aggregate
	for _, issue := range issues {
		a.counts[ParseSeverity(issue.Severity)]++
	}
	for _, s := range Severities() {
		a.total += a.counts[s]
		a.weighted += a.counts[s] * s.Weight()
	}
	return a
}
