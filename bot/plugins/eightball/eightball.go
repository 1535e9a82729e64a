// Package eightball implements a magic 8-ball unit. A public randomness
// beacon decides the polarity of each answer and an AI completion phrases it;
// without a completion collaborator the unit falls back to canned responses.
package eightball

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/boo-chat/boo/bot/plugin"
)

// New is the unit factory registered under the name "eightball".
func New(api *plugin.API) plugin.Unit {
	return &unit{api: api}
}

type unit struct {
	api *plugin.API
	log *slog.Logger
}

func (u *unit) Name() string    { return "eightball" }
func (u *unit) Version() string { return "1.0.0" }
func (u *unit) Description() string {
	return "Magic 8-ball fortunes with beacon-determined polarity"
}
func (u *unit) Commands() []string { return []string{"8ball", "fortune", "advice", "nist"} }

func (u *unit) Initialize(ctx context.Context) error {
	u.log = u.api.Logger()
	u.log.Info("Unit initialised.", "oracle", u.api.Oracle() != nil)
	return nil
}

func (u *unit) Cleanup(ctx context.Context) error { return nil }

func (u *unit) Handle(ctx context.Context, call plugin.Call) (string, bool, error) {
	switch call.Command {
	case "8ball", "fortune":
		return u.fortune(ctx, call.Args), true, nil
	case "advice":
		if strings.TrimSpace(call.Args) == "" {
			return "❌ Please provide a question. Usage: advice <question>", true, nil
		}
		return u.advice(ctx, call.Args), true, nil
	case "nist":
		return u.pulseInfo(ctx), true, nil
	}
	return "", false, nil
}

// pulse returns the beacon's current value, falling back to the wall clock
// when the beacon is unreachable.
func (u *unit) pulse(ctx context.Context) uint64 {
	oracle := u.api.Oracle()
	if oracle == nil {
		return uint64(time.Now().Unix())
	}
	n, err := oracle.Pulse(ctx)
	if err != nil {
		u.log.Warn("Beacon unreachable, using clock.", "error", err)
		return uint64(time.Now().Unix())
	}
	return n
}

func (u *unit) fortune(ctx context.Context, question string) string {
	positive := u.pulse(ctx)%2 == 0
	question = strings.TrimSpace(question)

	if text, ok := u.complete(ctx, fortunePrompt(question, positive)); ok {
		return fmt.Sprintf("🎱 %s\n\n✨ *Determined by randomness beacon entropy*", text)
	}
	return "🎱 " + cannedFortune(positive, u.pulse(ctx))
}

func (u *unit) advice(ctx context.Context, question string) string {
	positive := u.pulse(ctx)%2 == 0
	if text, ok := u.complete(ctx, advicePrompt(question, positive)); ok {
		polarity := "cautionary"
		if positive {
			polarity = "encouraging"
		}
		return fmt.Sprintf("💭 **Advice:**\n%s\n\n✨ *Beacon-determined %s perspective*", text, polarity)
	}
	if positive {
		return "💭 Go for it. The signs look good, and you can course-correct later."
	}
	return "💭 Hold off for now. Sleep on it and look again tomorrow."
}

func (u *unit) pulseInfo(ctx context.Context) string {
	oracle := u.api.Oracle()
	if oracle == nil {
		return "❌ No randomness beacon configured"
	}
	n, err := oracle.Pulse(ctx)
	if err != nil {
		return "❌ Beacon unreachable, try again later"
	}
	polarity := "NEGATIVE"
	if n%2 == 0 {
		polarity = "POSITIVE"
	}
	return fmt.Sprintf("✨ Beacon pulse: %d (parity: %s)", n, polarity)
}

// complete asks the completion collaborator to phrase an answer. It reports
// false when no collaborator is configured or the call fails, so callers can
// fall back to canned responses.
func (u *unit) complete(ctx context.Context, prompt string) (string, bool) {
	oracle := u.api.Oracle()
	if oracle == nil {
		return "", false
	}
	text, err := oracle.Complete(ctx, prompt)
	if err != nil {
		u.log.Warn("Completion failed, using canned response.", "error", err)
		return "", false
	}
	return text, true
}

func fortunePrompt(question string, positive bool) string {
	polarity := "NEGATIVE/NO"
	if positive {
		polarity = "POSITIVE/YES"
	}
	if question == "" {
		return fmt.Sprintf("You are a dramatic magic 8-ball oracle powered by a public randomness beacon. "+
			"The beacon has determined this fortune should be %s. "+
			"Give a %s mystical fortune with cosmic flair, 1-2 sentences max.", polarity, strings.ToLower(polarity))
	}
	return fmt.Sprintf("You are a bold, decisive magic 8-ball oracle powered by a public randomness beacon. "+
		"Someone asks: %q. The beacon has determined this answer should be %s. "+
		"Give a CLEAR %s answer with mystical flair, 1-2 sentences max.", question, polarity, strings.ToLower(polarity))
}

func advicePrompt(question string, positive bool) string {
	tone := "CAUTIONARY and REALISTIC"
	if positive {
		tone = "ENCOURAGING and OPTIMISTIC"
	}
	return fmt.Sprintf("Someone asked for thoughtful advice: %q. "+
		"Give serious, considerate advice that is %s in tone, practical and actionable, 2-3 sentences.", question, tone)
}

var positiveAnswers = []string{
	"It is certain.",
	"Without a doubt.",
	"Yes, definitely.",
	"You may rely on it.",
	"Outlook good.",
	"Signs point to yes.",
}

var negativeAnswers = []string{
	"Don't count on it.",
	"My reply is no.",
	"Outlook not so good.",
	"Very doubtful.",
	"My sources say no.",
	"Better not tell you now.",
}

// cannedFortune picks a classic 8-ball answer using the beacon value so the
// choice stays reproducible for a given pulse.
func cannedFortune(positive bool, pulse uint64) string {
	if positive {
		return positiveAnswers[pulse%uint64(len(positiveAnswers))]
	}
	return negativeAnswers[pulse%uint64(len(negativeAnswers))]
}
