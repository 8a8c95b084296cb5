package billing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/withmywomen/backend/internal/pkg/entitlements"
)

// CorrelationDelimiter separates user id and tier in the PayPal custom_id.
const CorrelationDelimiter = "_"

const (
	metadataUserID = "userId"
	metadataTier   = "tier"
)

// Correlation ties a provider payment back to the local user and tier.
type Correlation struct {
	UserID uint
	Tier   entitlements.Tier
}

func (c Correlation) validate() error {
	if c.UserID == 0 {
		return fmt.Errorf("%w: missing user id", ErrInvalidCorrelation)
	}
	if !c.Tier.IsPaid() {
		return fmt.Errorf("%w: tier %q is not purchasable", ErrInvalidCorrelation, c.Tier)
	}
	if strings.Contains(string(c.Tier), CorrelationDelimiter) {
		return fmt.Errorf("%w: tier %q contains the delimiter", ErrInvalidCorrelation, c.Tier)
	}
	return nil
}

// Encode renders "<userId>_<tier>" for flat provider fields.
func (c Correlation) Encode() (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(c.UserID), 10) + CorrelationDelimiter + string(c.Tier), nil
}

// Metadata renders the correlation as provider metadata.
func (c Correlation) Metadata() (map[string]string, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return map[string]string{
		metadataUserID: strconv.FormatUint(uint64(c.UserID), 10),
		metadataTier:   string(c.Tier),
	}, nil
}

// ParseCorrelation decodes "<userId>_<tier>". Exactly one delimiter is
// allowed; anything else is ErrInvalidCorrelation.
func ParseCorrelation(raw string) (Correlation, error) {
	s := strings.TrimSpace(raw)
	if strings.Count(s, CorrelationDelimiter) != 1 {
		return Correlation{}, fmt.Errorf("%w: %q", ErrInvalidCorrelation, raw)
	}
	idPart, tierPart, _ := strings.Cut(s, CorrelationDelimiter)
	return correlationFromParts(idPart, tierPart)
}

// CorrelationFromMetadata reads the {userId, tier} metadata pair.
func CorrelationFromMetadata(md map[string]string) (Correlation, error) {
	if md == nil {
		return Correlation{}, fmt.Errorf("%w: no metadata", ErrInvalidCorrelation)
	}
	return correlationFromParts(md[metadataUserID], md[metadataTier])
}

func correlationFromParts(idPart, tierPart string) (Correlation, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(idPart), 10, 64)
	if err != nil || id == 0 || uint64(uint(id)) != id {
		return Correlation{}, fmt.Errorf("%w: bad user id %q", ErrInvalidCorrelation, idPart)
	}
	tier, ok := entitlements.ParseTier(tierPart)
	if !ok {
		return Correlation{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidCorrelation, tierPart)
	}
	c := Correlation{UserID: uint(id), Tier: tier}
	if err := c.validate(); err != nil {
		return Correlation{}, err
	}
	return c, nil
}
