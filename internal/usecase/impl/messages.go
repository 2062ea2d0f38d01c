package impl

import (
	"fmt"
	"strings"
	"time"

	"huddle/internal/domain/entity"
)

const clockLayout = "3:04 PM"

func formatWindow(w entity.TimeWindow, tz *time.Location) string {
	if tz == nil {
		tz = time.UTC
	}
	if !w.Valid() {
		return "at an unknown time"
	}

	start := w.Start.In(tz)
	end := w.End.In(tz)
	if start.Equal(end) {
		return "at " + start.Format(clockLayout)
	}

	return fmt.Sprintf("between %s and %s", start.Format(clockLayout), end.Format(clockLayout))
}

func msgAskIntent(missing []string) string {
	text := `Hi! Tell me what you'd like to order: a restaurant, a drop-off spot and a time, ` +
		`for example "Chipotle at Student Center East around 12:30".`
	if len(missing) > 0 && len(missing) < 3 {
		text += " I still need the " + strings.Join(missing, " and ") + "."
	}

	return text
}

func msgClarify(missing []string) string {
	return "Sorry, I couldn't understand that. " + msgAskIntent(missing)
}

func msgMatching(req *entity.UserRequest, tz *time.Location, cancelLink string) string {
	return withCancelLink(fmt.Sprintf("Got it: %s to %s %s. I'm looking for people to split the order with.",
		req.Restaurant, req.Location, formatWindow(req.Window, tz)), cancelLink)
}

func msgScheduled(req *entity.UserRequest, tz *time.Location, cancelLink string) string {
	if req.ActivateAt == nil {
		return msgMatching(req, tz, cancelLink)
	}

	return withCancelLink(fmt.Sprintf("Got it: %s to %s %s. I'll start looking for partners at %s.",
		req.Restaurant, req.Location, formatWindow(req.Window, tz), req.ActivateAt.In(tz).Format(clockLayout)), cancelLink)
}

func withCancelLink(text, cancelLink string) string {
	if cancelLink == "" {
		return text
	}

	return text + " Changed your mind? " + cancelLink
}

func msgAlreadyOpen(req *entity.UserRequest, tz *time.Location) string {
	return "You already have an open request. " + msgStatus(req, tz) + ` Reply CANCEL to start over.`
}

func msgStatus(req *entity.UserRequest, tz *time.Location) string {
	if req == nil {
		return "You have no open request. " + msgAskIntent(nil)
	}

	switch req.State {
	case entity.RequestStateAwaitingIntent:
		return msgAskIntent(entity.Intent{Restaurant: req.Restaurant, Location: req.Location, Window: req.Window}.Missing())
	case entity.RequestStateScheduled:
		return msgScheduled(req, tz, "")
	case entity.RequestStateMatching:
		return fmt.Sprintf("Still looking for partners for %s to %s %s.", req.Restaurant, req.Location, formatWindow(req.Window, tz))
	case entity.RequestStateNegotiating:
		return "I've found possible partners and I'm waiting for everyone to reply."
	case entity.RequestStateConfirmed:
		return "Your group is confirmed and the order is being placed."
	default:
		return fmt.Sprintf("Your last request is %s.", strings.ReplaceAll(string(req.State), "_", " "))
	}
}

func msgProposal(p *entity.NegotiationProposal, tz *time.Location, acceptLink, declineLink string) string {
	text := fmt.Sprintf("Someone else wants %s to %s %s. Reply YES to join, NO to pass, or COUNTER <time> to suggest another time. "+
		"This offer expires at %s.",
		p.Terms.Restaurant, p.Terms.Location, formatWindow(p.Terms.Window, tz), p.ExpiresAt.In(tz).Format(clockLayout))
	if acceptLink != "" && declineLink != "" {
		text += fmt.Sprintf(" Join: %s Pass: %s", acceptLink, declineLink)
	}

	return text
}

func msgWaitingReplies(count int, cancelLink string) string {
	if count == 1 {
		return withCancelLink("Found someone to share with! Waiting for their reply.", cancelLink)
	}

	return withCancelLink(fmt.Sprintf("Found %d people to share with! Waiting for their replies.", count), cancelLink)
}

func msgNegotiationFailed() string {
	return "That group didn't come together. I'm still looking for other partners."
}

func msgRoundAborted() string {
	return "The other person dropped out before the group was formed. I'm still looking for partners."
}

func msgExpired(req *entity.UserRequest) string {
	return fmt.Sprintf("Sorry, I couldn't find anyone to share %s to %s in time. Your request has expired; text me again anytime.",
		req.Restaurant, req.Location)
}

func msgCancelled(reason string) string {
	if reason == "" {
		return "Your request has been cancelled."
	}

	return "Your request has been cancelled: " + reason + "."
}

func msgNothingToCancel() string {
	return "You have no open request to cancel."
}

func msgNoOpenProposal() string {
	return "There is no offer waiting for your reply right now."
}

func msgReplyRecorded(response entity.ProposalResponse) string {
	switch response {
	case entity.ProposalAccepted:
		return "Thanks! Waiting for the rest of the group."
	case entity.ProposalCountered:
		return "Thanks! I've passed your suggested time along."
	default:
		return "No problem. I'll keep looking for other partners."
	}
}

func msgHandedOff(group *entity.GroupSession, paymentLink string, tz *time.Location) string {
	text := fmt.Sprintf("You're in! A group of %d is ordering %s to %s %s.",
		len(group.Members), group.Restaurant, group.Location, formatWindow(group.AgreedWindow, tz))
	if paymentLink != "" {
		text += " Pay your share here: " + paymentLink
	}

	return text
}

func msgGroupDissolved() string {
	return "A member left your group before the order was placed. I'm looking for new partners."
}

func msgGroupCancelled(group *entity.GroupSession) string {
	return fmt.Sprintf("Your group order from %s has been cancelled.", group.Restaurant)
}

func msgOptOut() string {
	return "You won't receive daily check-ins anymore. Reply OPTIN to turn them back on."
}

func msgOptIn() string {
	return "Daily check-ins are back on."
}

func msgStaleCancelled() string {
	return "I didn't hear back, so I closed your request. Text me again whenever you're hungry."
}

func msgInvariantCancelled() string {
	return "Something went wrong while forming your group, so your request was cancelled. Please text me again."
}

func msgBackToMatching() string {
	return "I'm looking for partners again."
}

func msgOfferClosed() string {
	return "That offer has already closed. I'll let you know when there's a new one."
}

func msgCounterNeedsTime() string {
	return `Which time works for you? For example "COUNTER 1:15".`
}
