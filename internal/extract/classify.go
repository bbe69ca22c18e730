package extract

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"tapassist/internal/model"
)

// FragmentKind tags the variant held by a Fragment.
type FragmentKind string

const (
	KindReward       FragmentKind = "reward"
	KindProgram      FragmentKind = "program"
	KindBanner       FragmentKind = "banner"
	KindUnrecognized FragmentKind = "unrecognized"
)

// Fragment is one classified JSON payload found inside assistant prose.
// Exactly one of Reward/Program/Banner/Unrecognized is set, per Kind.
type Fragment struct {
	Kind         FragmentKind   `json:"kind"`
	Span         Span           `json:"-"`
	Raw          string         `json:"-"`
	Reward       *model.Reward  `json:"reward,omitempty"`
	Program      *model.Program `json:"program,omitempty"`
	Banner       *model.Banner  `json:"banner,omitempty"`
	Unrecognized map[string]any `json:"unrecognized,omitempty"`

	// Conversation holds assistant prose the service embedded inside the
	// payload itself. The splitter splices it back into the displayed text.
	Conversation string `json:"-"`
}

// classifyValue types a successfully-parsed object. Classification is total:
// anything structurally valid that matches no known shape comes back as
// Unrecognized rather than an error.
//
// Rules, checked in order:
//  1. non-empty "rewards" array        -> Program
//  2. "rewardName" present             -> Reward
//  3. "bannerAction" + "title" present -> Banner
//  4. otherwise                        -> Unrecognized
func classifyValue(obj map[string]any, raw string, span Span) Fragment {
	if rewards, ok := obj["rewards"].([]any); ok && len(rewards) > 0 {
		var program model.Program
		if err := decodeInto(obj, &program); err == nil {
			frag := Fragment{Kind: KindProgram, Span: span, Raw: raw, Program: &program, Conversation: program.Conversation}
			program.Conversation = ""
			for i := range program.Rewards {
				inferProgramType(&program.Rewards[i])
			}
			return frag
		}
	}
	if _, ok := obj["rewardName"]; ok {
		var reward model.Reward
		if err := decodeInto(obj, &reward); err == nil {
			inferProgramType(&reward)
			frag := Fragment{Kind: KindReward, Span: span, Raw: raw, Reward: &reward, Conversation: reward.Conversation}
			reward.Conversation = ""
			return frag
		}
	}
	if _, hasAction := obj["bannerAction"]; hasAction {
		if _, hasTitle := obj["title"]; hasTitle {
			var banner model.Banner
			if err := decodeInto(obj, &banner); err == nil {
				return Fragment{Kind: KindBanner, Span: span, Raw: raw, Banner: &banner}
			}
		}
	}
	return Fragment{Kind: KindUnrecognized, Span: span, Raw: raw, Unrecognized: obj}
}

// inferProgramType fills a missing programType: a positive voucher amount
// implies a voucher reward, everything else defaults to points.
func inferProgramType(r *model.Reward) {
	if r.ProgramType != "" {
		return
	}
	if r.VoucherAmount > 0 {
		r.ProgramType = model.ProgramTypeVoucher
	} else {
		r.ProgramType = model.ProgramTypePoints
	}
}

// decodeInto re-marshals a generic object into a typed struct. Field-level
// normalization (FlexValue, LimitationValue) happens in the unmarshalers.
func decodeInto(obj map[string]any, dest any) error {
	data, err := sonic.Marshal(obj)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(data, dest); err != nil {
		log.Debug().Err(err).Msg("fragment decode failed, leaving unrecognized")
		return err
	}
	return nil
}

// parseCandidate parses one candidate into zero or more classified fragments.
// A bare array yields one fragment per object element. Parse failures return
// nothing: one malformed fragment must not prevent recognizing valid siblings.
func parseCandidate(c Candidate) []Fragment {
	var value any
	if err := sonic.Unmarshal([]byte(sanitizeCandidate(c.Raw)), &value); err != nil {
		log.Debug().Str("raw", c.Raw).Err(err).Msg("discarding unparseable fragment")
		return nil
	}
	switch v := value.(type) {
	case map[string]any:
		return []Fragment{classifyValue(v, c.Raw, c.Span)}
	case []any:
		var frags []Fragment
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				frags = append(frags, classifyValue(obj, c.Raw, c.Span))
			}
		}
		return frags
	default:
		return nil
	}
}

// sanitizeCandidate strips the line comments and control characters the
// service occasionally leaks into payloads.
func sanitizeCandidate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(raw) {
				i++
				b.WriteByte(raw[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '/' && i+1 < len(raw) && raw[i+1] == '/' {
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
			continue
		}
		if c < 0x20 && c != '\n' && c != '\t' {
			continue
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return strings.TrimSpace(b.String())
}

// FormatCondition renders a condition with its human-readable template.
// Unknown types still render via the generic fallback.
func FormatCondition(c model.Condition) string {
	switch c.Type {
	case "minimumSpend":
		return fmt.Sprintf("Minimum spend of $%s", conditionValue(c))
	case "minimumLifetimeSpend":
		return fmt.Sprintf("Total lifetime spend of $%s", conditionValue(c))
	case "minimumTransactions":
		return fmt.Sprintf("Minimum %s transactions", conditionValue(c))
	case "maximumTransactions":
		return fmt.Sprintf("Maximum %s transactions", conditionValue(c))
	case "minimumPointsBalance":
		return fmt.Sprintf("Minimum %s points balance", conditionValue(c))
	case "membershipLevel":
		return fmt.Sprintf("%s membership level required", conditionValue(c))
	case "daysSinceJoined":
		return fmt.Sprintf("Account age: %s days", conditionValue(c))
	case "daysSinceLastVisit":
		return fmt.Sprintf("%s days since last visit", conditionValue(c))
	case "visitCount":
		return fmt.Sprintf("%s visits required", conditionValue(c))
	case "spendAmount":
		return fmt.Sprintf("Spend of $%s", conditionValue(c))
	case "pointsBalance":
		return fmt.Sprintf("%s points balance", conditionValue(c))
	case "birthday":
		return "Customer birthday"
	case "firstVisit":
		return "First visit"
	case "specificProduct":
		return fmt.Sprintf("Purchase of %s", conditionValue(c))
	case "specificCategory":
		return fmt.Sprintf("Purchase from %s", conditionValue(c))
	case "timeOfDay":
		return fmt.Sprintf("During %s", conditionValue(c))
	default:
		return fmt.Sprintf("%s: %s", c.Type, conditionValue(c))
	}
}

func conditionValue(c model.Condition) string {
	if c.Amount != nil {
		return (&model.FlexValue{Number: c.Amount}).Display()
	}
	return c.Value.Display()
}

// FormatLimitation renders a limitation with its human-readable template.
func FormatLimitation(l model.Limitation) string {
	switch l.Type {
	case "customerLimit":
		return fmt.Sprintf("%s per customer", l.Value.Display())
	case "totalRedemptionLimit":
		return fmt.Sprintf("%s total available", l.Value.Display())
	case "expiryDate":
		return fmt.Sprintf("Expires %s", l.Value.Display())
	case "daysOfWeek":
		return fmt.Sprintf("Available on %s", l.Value.Display())
	case "timeOfDay":
		return fmt.Sprintf("Available %s", l.Value.Display())
	case "activePeriod":
		return fmt.Sprintf("Valid %s", l.Value.Display())
	default:
		return fmt.Sprintf("%s: %s", l.Type, l.Value.Display())
	}
}
