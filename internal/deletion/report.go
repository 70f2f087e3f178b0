package deletion

import "fmt"

// BuildReport summarizes the run. It has no side effects.
func BuildReport(outcomes []ResourceOutcome, identity IdentityOutcome) Report {
	s := Summary{TotalCount: len(outcomes)}
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			s.SuccessCount++
		}
	}
	cp := make([]ResourceOutcome, len(outcomes))
	copy(cp, outcomes)

	var msg string
	if identity.Deleted {
		msg = fmt.Sprintf("Account hard deleted successfully. Data removed from %d/%d tables. Auth user deleted.", s.SuccessCount, s.TotalCount)
	} else {
		msg = fmt.Sprintf("Data deleted from %d/%d tables. Auth user deletion failed (OAuth issue).", s.SuccessCount, s.TotalCount)
	}
	return Report{Outcomes: cp, Identity: identity, Summary: s, Message: msg}
}
