package snowwhite

import (
	"fmt"
	"strings"
)

// scope is what a run acts on, as it appears in every message.
type scope struct {
	action  Action
	app     string
	region  string
	pattern string
}

func (s scope) noTargetsMessage() string {
	return fmt.Sprintf("I didn't find any worker environments to _%s_ for environment names containing _%s_ in *%s (%s).*",
		s.action, s.pattern, s.app, s.region)
}

func (s scope) startDirectMessage() string {
	return fmt.Sprintf("I'm going to _%s_ the Sidekiq workers for all environment names containing _%s_ in *%s (%s).* I'll let you know when they are done",
		s.action, s.pattern, s.app, s.region)
}

func (s scope) startChannelMessage(actor Actor) string {
	who := "Someone"
	if actor.User != "" {
		who = fmt.Sprintf("*_%s_*", actor.User)
	}
	return fmt.Sprintf("%s has asked me to _%s_ the Sidekiq workers for all environment names containing _%s_ in *%s (%s).* I'll let you know when they are done",
		who, s.action, s.pattern, s.app, s.region)
}

func (s scope) dispatchFailedMessage(err error) string {
	return fmt.Sprintf("Uh oh.  I couldn't send the _%s_ command to the workers in *%s (%s)*: %v",
		s.action, s.app, s.region, err)
}

// resultMessage summarises a finished run. Failed instances are labelled by
// response code; instances that never reported are listed separately, worded
// by whether the wait ran out or was cut short.
func (s scope) resultMessage(result RunResult) string {
	failed := result.Failed()
	pending := result.Pending()

	if len(failed) == 0 && len(pending) == 0 {
		return fmt.Sprintf("The workers are all %s for all environment names containing _%s_ in *%s (%s)*",
			s.action.Done(), s.pattern, s.app, s.region)
	}

	var b strings.Builder
	if len(failed) > 0 {
		fmt.Fprintf(&b, "Uh oh.  I had a problem telling the workers to %s on these instances in *%s (%s)*\n\n", s.action, s.app, s.region)
		for _, t := range failed {
			b.WriteString(failureLine(t, result.Outcomes[t.InstanceID].Code))
		}
	}

	if len(pending) > 0 {
		switch {
		case len(failed) > 0:
			b.WriteString("\n")
		case result.Interrupted:
			fmt.Fprintf(&b, "Hmm.  I was stopped before every worker told me how it went when I asked them to %s in *%s (%s)*\n\n", s.action, s.app, s.region)
		default:
			fmt.Fprintf(&b, "Hmm.  Not every worker told me how it went when I asked them to %s in *%s (%s)*\n\n", s.action, s.app, s.region)
		}
		if result.Interrupted {
			b.WriteString("I stopped waiting before these instances reported back:\n")
		} else {
			b.WriteString("These instances did not report back in time:\n")
		}
		for _, t := range pending {
			fmt.Fprintf(&b, "%s (%s)\n", t.InstanceID, t.Environment)
		}
	}

	return b.String()
}

func failureLine(t InstanceTarget, code int) string {
	switch code {
	case CodeNotQuieted:
		return fmt.Sprintf("%s (%s) - worker not quieted\n", t.InstanceID, t.Environment)
	case CodeStillRunning:
		return fmt.Sprintf("%s (%s) - worker still running jobs\n", t.InstanceID, t.Environment)
	default:
		return fmt.Sprintf("%s (%s)\n", t.InstanceID, t.Environment)
	}
}
