package ccml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudonix/voicerouter/internal/models"
)

func TestDialVoiceAgent_NonAuthProviderOmitsCredentials(t *testing.T) {
	agent := models.VoiceAgent{Provider: models.ProviderVapi, ServiceValue: "asst_1"}
	doc, err := DialVoiceAgent(agent, "+1999")
	require.NoError(t, err)

	assert.Contains(t, doc, `<Service provider="vapi">asst_1</Service>`)
	assert.Contains(t, doc, `callerId="+1999"`)
	assert.NotContains(t, doc, "username")
	require.NoError(t, Validate(doc))
}

func TestDialVoiceAgent_AuthProviderIncludesCredentials(t *testing.T) {
	user, pass := "u1", "p1"
	agent := models.VoiceAgent{Provider: models.ProviderBland, ServiceValue: "agent-1", Username: &user, Password: &pass}
	doc, err := DialVoiceAgent(agent, "")
	require.NoError(t, err)

	assert.Contains(t, doc, `username="u1"`)
	assert.Contains(t, doc, `password="p1"`)
	require.NoError(t, Validate(doc))
}

func TestDialVoiceAgent_EscapesXMLSpecialCharacters(t *testing.T) {
	agent := models.VoiceAgent{Provider: models.ProviderVapi, ServiceValue: `a&b"c`}
	doc, err := DialVoiceAgent(agent, `+1<999>`)
	require.NoError(t, err)

	assert.NotContains(t, doc, `+1<999>`)
	assert.Contains(t, doc, "&amp;")
	require.NoError(t, Validate(doc))
}

func TestDialTrunk_EmitsCommaJoinedTrunkIDs(t *testing.T) {
	doc, err := DialTrunk("+1555", TrunkDialOptions{TrunkIDs: []string{"t1", "t2"}}, "+1999")
	require.NoError(t, err)

	assert.Contains(t, doc, `trunks="t1,t2"`)
	assert.Contains(t, doc, "<Number>+1555</Number>")
	require.NoError(t, Validate(doc))
}

func TestDialTrunk_OmitsTrunksAttrWhenEmpty(t *testing.T) {
	doc, err := DialTrunk("+1555", TrunkDialOptions{}, "")
	require.NoError(t, err)
	assert.NotContains(t, doc, "trunks=")
	require.NoError(t, Validate(doc))
}

func TestHangup_MatchesExpectedScenario(t *testing.T) {
	doc, err := Hangup()
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`, doc)
	require.NoError(t, Validate(doc))
}

func TestValidate_RejectsMalformedXML(t *testing.T) {
	err := Validate(`<Response><Dial>`)
	assert.Error(t, err)
}

func TestValidate_RejectsWrongRoot(t *testing.T) {
	err := Validate(`<Wrapper><Hangup/></Wrapper>`)
	assert.Error(t, err)
}

func TestValidate_RejectsBothDialAndHangup(t *testing.T) {
	err := Validate(`<Response><Dial><Number>+1555</Number></Dial><Hangup/></Response>`)
	assert.Error(t, err)
}

func TestValidate_RejectsDialWithBothServiceAndNumber(t *testing.T) {
	err := Validate(`<Response><Dial><Service provider="vapi">a</Service><Number>+1555</Number></Dial></Response>`)
	assert.Error(t, err)
}

func TestValidate_RejectsForeignElement(t *testing.T) {
	err := Validate(`<Response><Dial><Script>evil</Script></Dial></Response>`)
	assert.Error(t, err)
}

func TestRequiresAuth(t *testing.T) {
	assert.True(t, RequiresAuth(models.ProviderBland))
	assert.False(t, RequiresAuth(models.ProviderVapi))
}
