package validation

import (
	"sort"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
)

// CapabilityRegistry reports which connectors can run right now.
type CapabilityRegistry interface {
	AvailableConnectors() map[string]bool
}

// Credentials are the connector API keys known to the process.
type Credentials struct {
	ExaAPIKey    string `mapstructure:"exa_api_key"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	PDLAPIKey    string `mapstructure:"pdl_api_key"`
}

// CredentialRegistry derives availability from configured credentials.
// The legal-entity registry needs no key and is always available.
type CredentialRegistry struct {
	creds Credentials
}

// NewCredentialRegistry wraps creds.
func NewCredentialRegistry(creds Credentials) *CredentialRegistry {
	return &CredentialRegistry{creds: creds}
}

func (r *CredentialRegistry) AvailableConnectors() map[string]bool {
	out := map[string]bool{microplan.ConnectorGLEIF: true}
	if r.creds.ExaAPIKey != "" {
		out[microplan.ConnectorExa] = true
	}
	if r.creds.OpenAIAPIKey != "" {
		out[microplan.ConnectorOpenAIWeb] = true
	}
	if r.creds.PDLAPIKey != "" {
		out[microplan.ConnectorPDL] = true
		out[microplan.ConnectorPDLCompany] = true
	}
	return out
}

// StaticRegistry is a fixed connector set.
type StaticRegistry map[string]bool

// NewStaticRegistry marks each key available.
func NewStaticRegistry(keys ...string) StaticRegistry {
	r := make(StaticRegistry, len(keys))
	for _, k := range keys {
		r[k] = true
	}
	return r
}

func (r StaticRegistry) AvailableConnectors() map[string]bool {
	out := make(map[string]bool, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Names lists the available connector keys in order.
func Names(r CapabilityRegistry) []string {
	var out []string
	for k, ok := range r.AvailableConnectors() {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
