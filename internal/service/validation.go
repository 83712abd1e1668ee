package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/idna"
)

var (
	emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-']+@[a-z0-9.-]+\.[a-z]{2,}$`)
	idnaProfile  = idna.Lookup
)

const (
	defaultPhoneRegion = "US"
	maxFieldLength     = 256
	maxMessageLength   = 5000
)

// ValidationError reports a rejected input field. It maps to a 4xx response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// LeadInput is the raw lead payload before cleaning.
type LeadInput struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Network string
	Message string
}

// CleanLead is a validated, normalised lead payload.
type CleanLead struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Network string
	Message string
}

// DNSResolver abstracts DNS lookups to simplify testing.
type DNSResolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// ContactValidator cleans and validates contact details shared by leads and subscribers.
type ContactValidator struct {
	DefaultRegion string
	dnsResolver   DNSResolver
}

// ValidatorOption configures optional dependencies.
type ValidatorOption func(*ContactValidator)

// WithDNSResolver enables an MX lookup on email domains.
func WithDNSResolver(resolver DNSResolver) ValidatorOption {
	return func(v *ContactValidator) {
		v.dnsResolver = resolver
	}
}

// NewContactValidator builds a validator. Phone numbers without a country code are read
// in defaultRegion.
func NewContactValidator(defaultRegion string, opts ...ValidatorOption) *ContactValidator {
	region := strings.ToUpper(strings.TrimSpace(defaultRegion))
	if region == "" {
		region = defaultPhoneRegion
	}
	v := &ContactValidator{DefaultRegion: region}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Lead validates input. Name, email and phone are always required; company and network
// only when requireCompany is set.
func (v *ContactValidator) Lead(ctx context.Context, input LeadInput, requireCompany bool) (CleanLead, error) {
	out := CleanLead{
		Name:    strings.TrimSpace(input.Name),
		Company: strings.TrimSpace(input.Company),
		Network: strings.ToLower(strings.TrimSpace(input.Network)),
		Message: strings.TrimSpace(input.Message),
	}

	if out.Name == "" {
		return CleanLead{}, invalid("name", "name is required")
	}
	if len(out.Name) > maxFieldLength {
		return CleanLead{}, invalid("name", "name is too long")
	}

	email, err := v.Email(ctx, input.Email)
	if err != nil {
		return CleanLead{}, err
	}
	out.Email = email

	phone := strings.TrimSpace(input.Phone)
	if phone == "" {
		return CleanLead{}, invalid("phone", "phone is required")
	}
	if len(phone) > maxFieldLength {
		return CleanLead{}, invalid("phone", "phone is too long")
	}
	// Numbers that do not parse are kept as typed; the form accepts free text.
	if normalized := normalizePhone(phone, v.DefaultRegion); normalized != "" {
		phone = normalized
	}
	out.Phone = phone

	if requireCompany {
		if out.Company == "" {
			return CleanLead{}, invalid("company", "company is required")
		}
		if out.Network == "" {
			return CleanLead{}, invalid("network", "network is required")
		}
	}
	if len(out.Company) > maxFieldLength {
		return CleanLead{}, invalid("company", "company is too long")
	}
	if len(out.Network) > maxFieldLength {
		return CleanLead{}, invalid("network", "network is too long")
	}
	if len(out.Message) > maxMessageLength {
		return CleanLead{}, invalid("message", "message is too long")
	}

	return out, nil
}

// Email lowercases raw and checks its shape and domain.
func (v *ContactValidator) Email(ctx context.Context, raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email", "email is required")
	}
	if !emailPattern.MatchString(email) {
		return "", invalid("email", "email is not a valid address")
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	if !isDomainValid(domain) {
		return "", invalid("email", "email domain is not valid")
	}
	asciiDomain, err := idnaProfile.ToASCII(domain)
	if err != nil || asciiDomain == "" {
		return "", invalid("email", "email domain is not valid")
	}
	if v.dnsResolver != nil && !v.hasMXRecord(ctx, asciiDomain) {
		return "", invalid("email", "email domain does not accept mail")
	}
	return email, nil
}

func (v *ContactValidator) hasMXRecord(ctx context.Context, domain string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	records, err := v.dnsResolver.LookupMX(ctx, domain)
	return err == nil && len(records) > 0
}

func normalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if region == "" {
		region = defaultPhoneRegion
	}
	number, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsPossibleNumber(number) || !phonenumbers.IsValidNumber(number) {
		return ""
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

func isDomainValid(domain string) bool {
	if strings.Count(domain, ".") == 0 {
		return false
	}
	parts := strings.Split(domain, ".")
	for _, part := range parts {
		if part == "" || strings.HasPrefix(part, "-") || strings.HasSuffix(part, "-") {
			return false
		}
	}
	return true
}
