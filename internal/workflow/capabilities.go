package workflow

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/lexsign-io/lexsigngo/internal/models"
)

// SchemaCapabilities describes what the deployed database schema can
// express. Old deployments predate the assigned-signer column on spots and
// behave as pure single-signer installations.
type SchemaCapabilities struct {
	SpotSignerColumn bool
}

// DetectCapabilities probes the live schema once.
func DetectCapabilities(db *gorm.DB) SchemaCapabilities {
	return SchemaCapabilities{
		SpotSignerColumn: db.Migrator().HasColumn(&models.SignatureSpot{}, "assigned_signer_id"),
	}
}

// CapabilitiesCache is a value-with-expiry holder for SchemaCapabilities,
// refreshed on miss. Schema changes only at migration time, so a long TTL
// is fine; the expiry exists so a live-migrated deployment picks the new
// column up without a restart.
type CapabilitiesCache struct {
	mu     sync.Mutex
	value  SchemaCapabilities
	expiry time.Time
	ttl    time.Duration
	probe  func() SchemaCapabilities
}

// NewCapabilitiesCache builds the cache around a probe function. Tests
// inject a fixed probe.
func NewCapabilitiesCache(ttl time.Duration, probe func() SchemaCapabilities) *CapabilitiesCache {
	return &CapabilitiesCache{ttl: ttl, probe: probe}
}

// Get returns the cached capabilities, refreshing after expiry.
func (c *CapabilitiesCache) Get() SchemaCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.After(c.expiry) {
		c.value = c.probe()
		c.expiry = now.Add(c.ttl)
	}
	return c.value
}

// SpotAssignment is the per-capability strategy for who owns a spot and who
// may sign it.
type SpotAssignment interface {
	// ResolveSigner picks the signer persisted on a new spot
	ResolveSigner(in SpotInput, signers []models.Signer, nextRR func() *models.Signer) (signerID *string, signerName string)
	// MaySign answers the authorization question for an existing spot
	MaySign(file *models.SigningFile, spot *models.SignatureSpot, sc SignerContext) bool
}

// assignmentFor picks the strategy matching the schema.
func assignmentFor(caps SchemaCapabilities) SpotAssignment {
	if caps.SpotSignerColumn {
		return MultiSignerSpotAssignment{}
	}
	return LegacySpotAssignment{}
}

// LegacySpotAssignment treats every document as single-signer: spots carry
// no signer identity and only the file's primary client signs.
type LegacySpotAssignment struct{}

func (LegacySpotAssignment) ResolveSigner(SpotInput, []models.Signer, func() *models.Signer) (*string, string) {
	return nil, ""
}

func (LegacySpotAssignment) MaySign(file *models.SigningFile, _ *models.SignatureSpot, sc SignerContext) bool {
	return sc.UserID == file.ClientID
}

// MultiSignerSpotAssignment honors explicit signer ids on spots. An
// unassigned spot stays signable by the primary client for backward
// compatibility with single-signer documents.
type MultiSignerSpotAssignment struct{}

// ResolveSigner matches by explicit id, then by index into the signer
// list, then by name; anything still unresolved is distributed round-robin
// when signers were supplied at all.
func (MultiSignerSpotAssignment) ResolveSigner(in SpotInput, signers []models.Signer, nextRR func() *models.Signer) (*string, string) {
	if in.SignerID != nil {
		name := ""
		for _, s := range signers {
			if s.UserID != nil && *s.UserID == *in.SignerID {
				name = s.Name
				break
			}
		}
		return in.SignerID, name
	}
	if in.SignerIndex != nil && *in.SignerIndex >= 0 && *in.SignerIndex < len(signers) {
		s := signers[*in.SignerIndex]
		return s.UserID, s.Name
	}
	if in.SignerName != "" {
		for _, s := range signers {
			if s.Name == in.SignerName {
				return s.UserID, s.Name
			}
		}
	}
	if len(signers) > 0 {
		if s := nextRR(); s != nil {
			return s.UserID, s.Name
		}
	}
	return nil, in.SignerName
}

func (MultiSignerSpotAssignment) MaySign(file *models.SigningFile, spot *models.SignatureSpot, sc SignerContext) bool {
	if spot.AssignedSignerID == nil {
		return sc.UserID == file.ClientID
	}
	return sc.UserID == *spot.AssignedSignerID || sc.UserID == file.ClientID
}
