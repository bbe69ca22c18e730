package model

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Program types the assistant is instructed to emit.
const (
	ProgramTypeVoucher  = "voucher"
	ProgramTypePoints   = "points"
	ProgramTypeDiscount = "discount"
)

// Reward is a single redeemable reward as emitted by the assistant service.
type Reward struct {
	RewardName        string             `json:"rewardName" bson:"rewardName"`
	Description       string             `json:"description" bson:"description"`
	ProgramType       string             `json:"programType,omitempty" bson:"programType,omitempty"`
	PointsCost        int                `json:"pointsCost" bson:"pointsCost"`
	IsActive          bool               `json:"isActive" bson:"isActive"`
	RewardVisibility  string             `json:"rewardVisibility,omitempty" bson:"rewardVisibility,omitempty"`
	VoucherAmount     float64            `json:"voucherAmount,omitempty" bson:"voucherAmount,omitempty"`
	DelayedVisibility *DelayedVisibility `json:"delayedVisibility,omitempty" bson:"delayedVisibility,omitempty"`
	Conditions        []Condition        `json:"conditions" bson:"conditions"`
	Limitations       []Limitation       `json:"limitations" bson:"limitations"`

	// Conversation carries assistant prose the service sometimes embeds
	// inside the JSON payload instead of around it. It is extracted during
	// classification and never persisted with the reward.
	Conversation string `json:"conversation,omitempty" bson:"-"`
}

// Program bundles several rewards committed together under one shared
// program identifier.
type Program struct {
	ProgramName  string   `json:"programName" bson:"programName"`
	Description  string   `json:"description" bson:"description"`
	ProgramType  string   `json:"programType,omitempty" bson:"programType,omitempty"`
	Rewards      []Reward `json:"rewards" bson:"rewards"`
	Conversation string   `json:"conversation,omitempty" bson:"-"`
}

// Banner is a promotional banner suggestion.
type Banner struct {
	Title          string `json:"title" bson:"title"`
	Description    string `json:"description" bson:"description"`
	Color          string `json:"color,omitempty" bson:"color,omitempty"`
	Style          string `json:"style,omitempty" bson:"style,omitempty"`
	BannerAction   string `json:"bannerAction" bson:"bannerAction"`
	VisibilityType string `json:"visibilityType,omitempty" bson:"visibilityType,omitempty"`
	IsActive       bool   `json:"isActive" bson:"isActive"`
}

// DelayedVisibility hides a reward until the customer crosses a threshold.
type DelayedVisibility struct {
	Type  string  `json:"type" bson:"type"`
	Value float64 `json:"value" bson:"value"`
}

// Condition gates redemption eligibility. The meaning of Amount/Value depends
// on Type (minimum spend, visit count, membership level, ...).
type Condition struct {
	Type   string     `json:"type" bson:"type"`
	Amount *float64   `json:"amount,omitempty" bson:"amount,omitempty"`
	Value  *FlexValue `json:"value,omitempty" bson:"value,omitempty"`
}

// Limitation restricts how and when a reward can be redeemed.
type Limitation struct {
	Type  string          `json:"type" bson:"type"`
	Value LimitationValue `json:"value" bson:"value"`
}

// FlexValue holds a wire value that is sometimes a bare number and sometimes
// a string (e.g. a membership level name). It is normalized into this tagged
// form once, at the parse boundary.
type FlexValue struct {
	Number *float64 `json:"number,omitempty" bson:"number,omitempty"`
	Text   string   `json:"text,omitempty" bson:"text,omitempty"`
}

func (v *FlexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch data[0] {
	case '"':
		return sonic.Unmarshal(data, &v.Text)
	case '{':
		// Already in normalized form.
		type plain FlexValue
		return sonic.Unmarshal(data, (*plain)(v))
	default:
		var n float64
		if err := sonic.Unmarshal(data, &n); err != nil {
			return err
		}
		v.Number = &n
		return nil
	}
}

// Display renders the value for human-readable templates.
func (v *FlexValue) Display() string {
	if v == nil {
		return ""
	}
	if v.Number != nil {
		return trimFloat(*v.Number)
	}
	return v.Text
}

// TimeRange is a daily time window, e.g. {"startTime":"09:00","endTime":"17:00"}.
type TimeRange struct {
	StartTime string `json:"startTime,omitempty" bson:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty" bson:"endTime,omitempty"`
}

// DateRange is a calendar validity window.
type DateRange struct {
	StartDate string `json:"startDate,omitempty" bson:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty" bson:"endDate,omitempty"`
}

// LimitationValue is the tagged variant behind a limitation's polymorphic
// wire value: a number, a list of weekday names, a time-of-day window, a date
// window, or free text. Normalization happens once on unmarshal; business
// logic never inspects raw dynamic shapes.
type LimitationValue struct {
	Number    *float64   `json:"number,omitempty" bson:"number,omitempty"`
	Days      []string   `json:"days,omitempty" bson:"days,omitempty"`
	TimeRange *TimeRange `json:"timeRange,omitempty" bson:"timeRange,omitempty"`
	DateRange *DateRange `json:"dateRange,omitempty" bson:"dateRange,omitempty"`
	Text      string     `json:"text,omitempty" bson:"text,omitempty"`
}

func (v *LimitationValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch data[0] {
	case '"':
		return sonic.Unmarshal(data, &v.Text)
	case '[':
		return sonic.Unmarshal(data, &v.Days)
	case '{':
		var raw map[string]any
		if err := sonic.Unmarshal(data, &raw); err != nil {
			return err
		}
		if hasAnyKey(raw, "startTime", "endTime") {
			var tr TimeRange
			if err := sonic.Unmarshal(data, &tr); err != nil {
				return err
			}
			v.TimeRange = &tr
			return nil
		}
		if hasAnyKey(raw, "startDate", "endDate") {
			var dr DateRange
			if err := sonic.Unmarshal(data, &dr); err != nil {
				return err
			}
			v.DateRange = &dr
			return nil
		}
		// Assume normalized form written by this service.
		type plain LimitationValue
		return sonic.Unmarshal(data, (*plain)(v))
	default:
		var n float64
		if err := sonic.Unmarshal(data, &n); err != nil {
			return err
		}
		v.Number = &n
		return nil
	}
}

// Display renders the value for human-readable templates.
func (v LimitationValue) Display() string {
	switch {
	case v.Number != nil:
		return trimFloat(*v.Number)
	case v.Days != nil:
		return strings.Join(v.Days, ", ")
	case v.TimeRange != nil:
		return v.TimeRange.StartTime + " - " + v.TimeRange.EndTime
	case v.DateRange != nil:
		return v.DateRange.StartDate + " - " + v.DateRange.EndDate
	default:
		return v.Text
	}
}

func hasAnyKey(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// RewardStatus is the publication state chosen at commit time.
type RewardStatus string

const (
	StatusDraft RewardStatus = "draft"
	StatusLive  RewardStatus = "live"
)

// CategoryIndividual is the fixed category stamped on every committed reward.
const CategoryIndividual = "individual"

// PersistedReward is the record written to the three mirrored reward
// locations. All three copies share the same ID and identical payload.
type PersistedReward struct {
	Reward `bson:",inline"`

	ID          string       `json:"id" bson:"_id"`
	ProgramID   string       `json:"programId,omitempty" bson:"programId,omitempty"`
	ProgramName string       `json:"programName,omitempty" bson:"programName,omitempty"`
	MerchantID  string       `json:"merchantId" bson:"merchantId"`
	PIN         string       `json:"pin" bson:"pin"`
	Status      RewardStatus `json:"status" bson:"status"`
	Category    string       `json:"category" bson:"category"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// CommitSummary reports a successful commit back to the caller.
type CommitSummary struct {
	RewardsCommitted int    `json:"rewardsCommitted"`
	ProgramID        string `json:"programId,omitempty"`
}
