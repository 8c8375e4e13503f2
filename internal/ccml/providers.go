package ccml

import "github.com/cloudonix/voicerouter/internal/models"

// authRequiredProviders is the closed set of providers whose Service element
// carries username/password attributes, per spec.md §4.6. Providers not
// listed here are addressed purely by their service_value (an assistant id,
// URL, or UUID) and never carry credentials on the wire.
var authRequiredProviders = map[models.Provider]bool{
	models.ProviderRetell:     true,
	models.ProviderBland:      true,
	models.ProviderSynthflow:  true,
	models.ProviderVoiceflow:  true,
	models.ProviderCognigy:    true,
	models.ProviderAutocalls:  true,
	models.ProviderAirCall:    true,
	models.ProviderVocode:     true,
	models.ProviderBlandAI:    true,
	models.ProviderCustomWS:   true,
	models.ProviderSIPTrunk:   true,
	models.ProviderGenericSIP: true,
}

// RequiresAuth reports whether provider's Service element must carry
// username/password attributes.
func RequiresAuth(provider models.Provider) bool {
	return authRequiredProviders[provider]
}
