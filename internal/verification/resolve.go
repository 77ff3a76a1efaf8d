package verification

import "github.com/wepublish/dorfkoenig/internal/domain"

// Resolve derives the draft status from the responses so far, given total
// correspondents for the village. A majority (floor(total/2)+1) decides; once
// everyone answered without a majority, ties go to confirmed.
func Resolve(responses domain.VerificationResponses, total int) domain.VerificationStatus {
	var confirms, rejects int
	for _, r := range responses {
		switch r.Response {
		case domain.VerificationConfirmed:
			confirms++
		case domain.VerificationRejected:
			rejects++
		}
	}

	majority := total/2 + 1
	switch {
	case rejects >= majority:
		return domain.VerificationRejected
	case confirms >= majority:
		return domain.VerificationConfirmed
	case total > 0 && len(responses) >= total && confirms == rejects:
		return domain.VerificationConfirmed
	default:
		return domain.VerificationPending
	}
}
