// Package validate implements the inbound text moderation chain: an
// ordered, short-circuiting sequence of rules that decides whether a
// message is forwarded, silently dropped, or answered with a warning.
package validate

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"digitalhuman/internal/config"
)

// Outcome classifies a validation decision.
type Outcome int

const (
	// Allow forwards the message unchanged.
	Allow Outcome = iota
	// Ignore drops the message with no visible reaction.
	Ignore
	// Warn drops the message and surfaces a warning to the user.
	Warn
)

// String returns the lower-case outcome name.
func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Ignore:
		return "ignore"
	case Warn:
		return "warn"
	default:
		return "unknown"
	}
}

// Result is the decision for one message. Message is set only for Warn.
type Result struct {
	Outcome Outcome
	Message string
}

// Allowed is the decision that forwards a message.
func Allowed() Result { return Result{Outcome: Allow} }

// Ignored is the decision that silently drops a message.
func Ignored() Result { return Result{Outcome: Ignore} }

// Warned is the decision that drops a message and warns the user.
func Warned(msg string) Result { return Result{Outcome: Warn, Message: msg} }

// RuleKind identifies the check a rule performs.
type RuleKind string

const (
	KindBlacklist     RuleKind = "blacklist"
	KindRateLimit     RuleKind = "rate_limit"
	KindContentFilter RuleKind = "content_filter"
	// KindUserLevel and KindCustom are reserved; rules of these kinds
	// currently always allow.
	KindUserLevel RuleKind = "user_level"
	KindCustom    RuleKind = "custom"
)

// Rule is one entry in the moderation chain. Rules are configuration:
// loaded once at startup and evaluated in declaration order.
type Rule struct {
	ID      string
	Name    string
	Kind    RuleKind
	Enabled bool
	Params  config.Params
}

// Parameter defaults, applied when a rule omits or misconfigures a value.
const (
	DefaultMaxMessagesPerMinute = 10
	DefaultCooldownSeconds      = 3
	DefaultMinLength            = 1
	DefaultMaxLength            = 200
)

// DefaultBlacklist is the word list used when a blacklist rule does not
// configure its own.
var DefaultBlacklist = []string{"spam", "scam", "advertisement"}

// userStats tracks per-user rate-limit state. Entries are created on a
// user's first message and never removed.
type userStats struct {
	lastMessageTime time.Time
	messageCount    int
}

// Validator applies the rule chain to inbound text. The zero value is
// not usable; construct with New.
type Validator struct {
	mu     sync.Mutex
	rules  []Rule
	users  map[string]*userStats
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// New creates a Validator with the given rule chain. Passing no rules
// installs DefaultRules.
func New(rules []Rule, opts ...Option) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	v := &Validator{
		rules: rules,
		users: make(map[string]*userStats),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// DefaultRules returns the standard chain: blacklist, rate limit,
// length filter, in that order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:      "blacklist",
			Name:    "sensitive word blacklist",
			Kind:    KindBlacklist,
			Enabled: true,
			Params: config.NewParams(map[string]any{
				"words": DefaultBlacklist,
			}),
		},
		{
			ID:      "rate_limit",
			Name:    "message rate limit",
			Kind:    KindRateLimit,
			Enabled: true,
			Params: config.NewParams(map[string]any{
				"max_messages_per_minute": DefaultMaxMessagesPerMinute,
				"cooldown_seconds":        DefaultCooldownSeconds,
			}),
		},
		{
			ID:      "length_filter",
			Name:    "message length filter",
			Kind:    KindContentFilter,
			Enabled: true,
			Params: config.NewParams(map[string]any{
				"min_length": DefaultMinLength,
				"max_length": DefaultMaxLength,
			}),
		},
	}
}

// RulesFromConfig converts configured rules into the chain, preserving
// declaration order. Unknown kinds are kept as KindCustom (always allow)
// so a typo disables a check rather than the service.
func RulesFromConfig(rules []config.RuleConfig) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, rc := range rules {
		kind := RuleKind(rc.Kind)
		switch kind {
		case KindBlacklist, KindRateLimit, KindContentFilter, KindUserLevel, KindCustom:
		default:
			kind = KindCustom
		}
		out = append(out, Rule{
			ID:      rc.ID,
			Name:    rc.Name,
			Kind:    kind,
			Enabled: rc.Enabled,
			Params:  config.NewParams(rc.Parameters),
		})
	}
	return out
}

// Validate runs the chain over the enabled rules in order. The first
// non-Allow result wins and later rules are not evaluated. An empty
// userID is treated as "anonymous".
func (v *Validator) Validate(text, userID string) Result {
	if userID == "" {
		userID = "anonymous"
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, rule := range v.rules {
		if !rule.Enabled {
			continue
		}
		res := v.applyRule(rule, text, userID)
		if res.Outcome != Allow {
			if v.logger != nil {
				v.logger.Info("validation rule triggered",
					slog.String("rule", rule.Name),
					slog.String("user_id", userID),
					slog.String("outcome", res.Outcome.String()),
				)
			}
			return res
		}
	}
	return Allowed()
}

func (v *Validator) applyRule(rule Rule, text, userID string) Result {
	switch rule.Kind {
	case KindBlacklist:
		return v.checkBlacklist(rule, text)
	case KindRateLimit:
		return v.checkRateLimit(rule, userID)
	case KindContentFilter:
		return v.checkContentFilter(rule, text)
	default:
		// Reserved kinds: user_level, custom.
		return Allowed()
	}
}

// checkBlacklist warns on the first configured word contained in the
// text. Matching is a case-sensitive substring check, in list order.
func (v *Validator) checkBlacklist(rule Rule, text string) Result {
	words := rule.Params.StringSlice("words", DefaultBlacklist)
	for _, word := range words {
		if word != "" && strings.Contains(text, word) {
			return Warned(fmt.Sprintf("contains sensitive word: %s", word))
		}
	}
	return Allowed()
}

// checkRateLimit enforces a per-user cooldown and a sliding one-minute
// message budget.
//
// The cooldown is measured from the last accepted message: an Ignore
// must not touch lastMessageTime, otherwise spam inside the cooldown
// window would keep resetting the clock and evade the minute counter.
// A Warn increments the counter but also leaves lastMessageTime alone.
func (v *Validator) checkRateLimit(rule Rule, userID string) Result {
	maxMessages := rule.Params.Int("max_messages_per_minute", DefaultMaxMessagesPerMinute)
	cooldown := time.Duration(rule.Params.Int("cooldown_seconds", DefaultCooldownSeconds)) * time.Second

	now := v.now()

	stats, known := v.users[userID]
	if !known {
		// First message from this user: state is created, not yet
		// evaluated against the cooldown.
		stats = &userStats{lastMessageTime: now}
		v.users[userID] = stats
	}

	if known {
		if now.Sub(stats.lastMessageTime) < cooldown {
			return Ignored()
		}
	}

	if now.Sub(stats.lastMessageTime) < time.Minute {
		stats.messageCount++
		if stats.messageCount > maxMessages {
			return Warned("rate limit exceeded")
		}
	} else {
		stats.messageCount = 1
	}

	stats.lastMessageTime = now
	return Allowed()
}

// checkContentFilter bounds the message length, counted in characters.
func (v *Validator) checkContentFilter(rule Rule, text string) Result {
	minLength := rule.Params.Int("min_length", DefaultMinLength)
	maxLength := rule.Params.Int("max_length", DefaultMaxLength)

	n := utf8.RuneCountInString(text)
	if n < minLength {
		return Ignored()
	}
	if n > maxLength {
		return Warned("message too long")
	}
	return Allowed()
}

// UserMessageCount returns the rate-limit counter for a user, and
// whether the user has been seen. Exposed for the status API.
func (v *Validator) UserMessageCount(userID string) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	stats, ok := v.users[userID]
	if !ok {
		return 0, false
	}
	return stats.messageCount, true
}

// Rules returns a copy of the configured chain.
func (v *Validator) Rules() []Rule {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Rule, len(v.rules))
	copy(out, v.rules)
	return out
}
