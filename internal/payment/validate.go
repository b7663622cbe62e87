package payment

import (
	"fmt"
	"math"
	"regexp"
	"sort"
)

// idPattern constrains client-supplied payment identifiers.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Validator checks the structural and semantic correctness of a payment
// request against static configuration. It has no side effects.
type Validator struct {
	maxAmount       float64
	currencies      map[string]struct{}
	accountPattern  *regexp.Regexp
	maxMetaEntries  int
	maxMetaValueLen int
	rules           []rule
}

// rule is a single independent check producing zero or more violations.
type rule func(*PaymentRequest) []Violation

// NewValidator builds a validator from the engine configuration.
func NewValidator(cfg Config) (*Validator, error) {
	accountPattern, err := regexp.Compile(cfg.AccountIDPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling account id pattern: %w", err)
	}

	currencies := make(map[string]struct{}, len(cfg.SupportedCurrencies))
	for _, c := range cfg.SupportedCurrencies {
		currencies[c] = struct{}{}
	}

	v := &Validator{
		maxAmount:       cfg.MaxAmount,
		currencies:      currencies,
		accountPattern:  accountPattern,
		maxMetaEntries:  cfg.MetadataMaxEntries,
		maxMetaValueLen: cfg.MetadataMaxValueLength,
	}

	// Rules are independent and all evaluated, so a caller gets the
	// complete violation list in one response.
	v.rules = []rule{
		v.checkID,
		v.checkAmount,
		v.checkCurrency,
		v.checkAccounts,
		v.checkMetadata,
	}

	return v, nil
}

// Validate runs every rule and returns the accumulated violations, in rule
// order. An empty result means the request is valid.
func (v *Validator) Validate(req *PaymentRequest) []Violation {
	var violations []Violation
	for _, r := range v.rules {
		violations = append(violations, r(req)...)
	}
	return violations
}

func (v *Validator) checkID(req *PaymentRequest) []Violation {
	if req.ID == "" {
		return []Violation{{Field: "id", Reason: "is required"}}
	}
	if !idPattern.MatchString(req.ID) {
		return []Violation{{Field: "id", Reason: "must match identifier syntax"}}
	}
	return nil
}

func (v *Validator) checkAmount(req *PaymentRequest) []Violation {
	switch {
	case math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0):
		return []Violation{{Field: "amount", Reason: "must be a finite number"}}
	case req.Amount <= 0:
		return []Violation{{Field: "amount", Reason: "must be positive"}}
	case req.Amount > v.maxAmount:
		return []Violation{{Field: "amount", Reason: fmt.Sprintf("must not exceed %v", v.maxAmount)}}
	}
	return nil
}

func (v *Validator) checkCurrency(req *PaymentRequest) []Violation {
	if _, ok := v.currencies[req.Currency]; !ok {
		return []Violation{{Field: "currency", Reason: "is not a supported currency"}}
	}
	return nil
}

func (v *Validator) checkAccounts(req *PaymentRequest) []Violation {
	var violations []Violation
	if req.PayerAccount == "" {
		violations = append(violations, Violation{Field: "payerAccount", Reason: "is required"})
	} else if !v.accountPattern.MatchString(req.PayerAccount) {
		violations = append(violations, Violation{Field: "payerAccount", Reason: "must match account format"})
	}
	if req.PayeeAccount == "" {
		violations = append(violations, Violation{Field: "payeeAccount", Reason: "is required"})
	} else if !v.accountPattern.MatchString(req.PayeeAccount) {
		violations = append(violations, Violation{Field: "payeeAccount", Reason: "must match account format"})
	}
	if req.PayerAccount != "" && req.PayerAccount == req.PayeeAccount {
		violations = append(violations, Violation{Field: "payeeAccount", Reason: "must differ from payerAccount"})
	}
	return violations
}

func (v *Validator) checkMetadata(req *PaymentRequest) []Violation {
	var violations []Violation
	if len(req.Metadata) > v.maxMetaEntries {
		violations = append(violations, Violation{
			Field:  "metadata",
			Reason: fmt.Sprintf("must not exceed %d entries", v.maxMetaEntries),
		})
	}
	keys := make([]string, 0, len(req.Metadata))
	for key := range req.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if len(req.Metadata[key]) > v.maxMetaValueLen {
			violations = append(violations, Violation{
				Field:  "metadata." + key,
				Reason: fmt.Sprintf("value must not exceed %d characters", v.maxMetaValueLen),
			})
		}
	}
	return violations
}
