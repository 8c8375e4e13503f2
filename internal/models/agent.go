package models

// Provider identifies a voice-agent backend. The set is closed and
// enumerated — see internal/ccml/providers.go for which providers require
// username/password authentication on the CCML Service element.
type Provider string

const (
	ProviderVapi        Provider = "vapi"
	ProviderRetell       Provider = "retell"
	ProviderBland        Provider = "bland"
	ProviderSynthflow    Provider = "synthflow"
	ProviderElevenLabs   Provider = "elevenlabs"
	ProviderPlayAI       Provider = "playai"
	ProviderVoiceflow    Provider = "voiceflow"
	ProviderCognigy      Provider = "cognigy"
	ProviderAutocalls    Provider = "autocalls"
	ProviderAirCall      Provider = "aircall"
	ProviderAssemblyAI   Provider = "assemblyai"
	ProviderDeepgram     Provider = "deepgram"
	ProviderRetellAI     Provider = "retell_ai"
	ProviderVocode       Provider = "vocode"
	ProviderBlandAI      Provider = "bland_ai"
	ProviderCustomWS     Provider = "custom_websocket"
	ProviderSIPTrunk     Provider = "sip_trunk"
	ProviderGenericSIP   Provider = "generic_sip"
)

// VoiceAgent is one AI agent endpoint. ServiceValue's meaning depends on
// Provider: an assistant id, a URL, or a UUID.
type VoiceAgent struct {
	ID           string
	TenantID     string
	Name         string
	Provider     Provider
	ServiceValue string
	// Username/Password hold the credentials exactly as stored in the
	// agents table; this package does not encrypt or decrypt them.
	Username *string
	Password *string
	Enabled  bool
	Metadata map[string]any
}

// CanDial reports whether the agent may currently receive a call.
func (a *VoiceAgent) CanDial(tenantID string) bool {
	return a != nil && a.Enabled && a.TenantID == tenantID
}
