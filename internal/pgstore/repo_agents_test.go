package pgstore

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudonix/voicerouter/internal/models"
)

func newMockRepo(t *testing.T) (*AgentRepo, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewAgentRepo(NewFromSQL(conn)), mock
}

func TestAgentRepo_GetAgent_Found(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "name", "provider", "service_value", "username", "password", "enabled", "metadata"}).
		AddRow("agent-1", "t1", "Agent One", "vapi", "asst_1", nil, nil, true, []byte(`{"region":"us"}`))
	mock.ExpectQuery("SELECT id, tenant_id, name, provider, service_value, username, password, enabled, metadata").
		WithArgs("t1", "agent-1").
		WillReturnRows(rows)

	agent, err := repo.GetAgent(context.Background(), "t1", "agent-1")
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, models.ProviderVapi, agent.Provider)
	assert.Equal(t, "us", agent.Metadata["region"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentRepo_GetAgent_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, tenant_id, name, provider, service_value, username, password, enabled, metadata").
		WithArgs("t1", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "provider", "service_value", "username", "password", "enabled", "metadata"}))

	agent, err := repo.GetAgent(context.Background(), "t1", "missing")
	require.NoError(t, err)
	assert.Nil(t, agent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAgentRepo_SaveMembership_RejectsZeroCapacity(t *testing.T) {
	repo, _ := newMockRepo(t)
	zero := 0
	err := repo.SaveMembership(context.Background(), &models.Membership{ID: "m1", Capacity: &zero})
	assert.Error(t, err)
}

func TestAgentRepo_SaveAgent_ExecutesUpsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO voice_agents").
		WithArgs("agent-1", "t1", "Agent One", "vapi", "asst_1", nil, nil, true, []byte("null")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveAgent(context.Background(), &models.VoiceAgent{
		ID: "agent-1", TenantID: "t1", Name: "Agent One", Provider: models.ProviderVapi, ServiceValue: "asst_1", Enabled: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
