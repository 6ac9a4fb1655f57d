package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/asanasense/internal/app"
	"github.com/dotcommander/asanasense/internal/store"
)

type envelope struct {
	SchemaVersion string          `json:"schema_version"`
	Success       bool            `json:"success"`
	Data          json.RawMessage `json:"data"`
	Error         string          `json:"error"`
	ErrorCode     string          `json:"error_code"`
}

type cycleView struct {
	Snapshot struct {
		Name       string                     `json:"name"`
		State      json.RawMessage            `json:"state"`
		Attributes map[string]json.RawMessage `json:"attributes"`
	} `json:"snapshot"`
	Outcome struct {
		RunID     string `json:"run_id"`
		Status    string `json:"status"`
		TaskCount int    `json:"task_count"`
	} `json:"outcome"`
	Error   string        `json:"error"`
	Dropped []droppedResp `json:"dropped_rules"`
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = original }()

	fn()

	require.NoError(t, w.Close())
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return string(b)
}

func decodeLines(t *testing.T, out string) []envelope {
	t.Helper()
	var envs []envelope
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var e envelope
		require.NoError(t, dec.Decode(&e))
		envs = append(envs, e)
	}
	return envs
}

// setupEnv isolates HOME and config lookups and pins today to 2024-01-08.
func setupEnv(t *testing.T, apiBase string, variables ...string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(app.EnvConfigPath, "")
	t.Setenv(app.EnvHistoryDB, "")
	t.Setenv(app.EnvAccessToken, "tok")
	t.Setenv(app.EnvWorkspace, "ws1")
	t.Setenv(app.EnvAPIBase, apiBase)
	t.Setenv(app.EnvVariables, strings.Join(variables, ","))
	t.Setenv("ASANASENSE_PRETTY_JSON", "")

	prev := nowFunc
	nowFunc = func() time.Time { return time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { nowFunc = prev })
}

func asanaStub(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var err error
	out := captureStdout(t, func() {
		root := NewRootCmd("test")
		root.SetArgs(args)
		err = root.Execute()
	})
	return out, err
}

const twoTasks = `{"data":[
	{"gid":"1","name":"a","completed":true,"completed_at":"2024-01-06T10:00:00.000Z","due_on":null},
	{"gid":"2","name":"b","completed":false,"completed_at":null,"due_on":"2024-01-10"}
],"next_page":null}`

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd("dev")
	require.Equal(t, "asanasense", cmd.Use)

	for _, name := range []string{"update", "poll", "rules", "history", "doctor"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		require.NotNil(t, sub)
		require.Equal(t, name, sub.Name())
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	out, err := runRoot(t, "--version")
	require.NoError(t, err)

	envs := decodeLines(t, out)
	require.Len(t, envs, 1)
	require.JSONEq(t, `{"version":"test"}`, string(envs[0].Data))
}

func TestUpdateCmd_PrintsSnapshot(t *testing.T) {
	srv, calls := asanaStub(t, twoTasks)
	setupEnv(t, srv.URL, "counter_past_7day", "list_future_allday", "bogus_name")

	out, err := runRoot(t, "update")
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	envs := decodeLines(t, out)
	require.Len(t, envs, 1)
	require.True(t, envs[0].Success)

	var cv cycleView
	require.NoError(t, json.Unmarshal(envs[0].Data, &cv))
	require.Equal(t, "asana", cv.Snapshot.Name)
	require.Equal(t, "updated", cv.Outcome.Status)
	require.Equal(t, 2, cv.Outcome.TaskCount)
	require.NotEmpty(t, cv.Outcome.RunID)
	require.JSONEq(t, `1`, string(cv.Snapshot.State))
	require.JSONEq(t, `1`, string(cv.Snapshot.Attributes["counter_past_7day"]))
	require.JSONEq(t, `["2024-01-10 - b"]`, string(cv.Snapshot.Attributes["list_future_allday"]))
	require.Len(t, cv.Dropped, 1)
	require.Equal(t, "bogus_name", cv.Dropped[0].Name)
}

func TestUpdateCmd_MalformedResponseReturnsPrintedError(t *testing.T) {
	srv, _ := asanaStub(t, `{"errors":[]}`)
	setupEnv(t, srv.URL, "counter_future_allday")

	out, err := runRoot(t, "update")
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
	require.EqualError(t, err, "error already printed")

	envs := decodeLines(t, out)
	require.Len(t, envs, 1)
	require.False(t, envs[0].Success)
	require.Equal(t, "FETCH_FAILED", envs[0].ErrorCode)
	require.Contains(t, envs[0].Error, "response not expected")
}

func TestUpdateCmd_MissingTokenIsConfigError(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1", "counter_future_allday")
	t.Setenv(app.EnvAccessToken, "")

	out, err := runRoot(t, "update")
	require.Error(t, err)
	require.IsType(t, printedError{}, err)

	envs := decodeLines(t, out)
	require.Len(t, envs, 1)
	require.Equal(t, "INVALID_CONFIG", envs[0].ErrorCode)
}

func TestUpdateCmd_TokenFlagOverridesEnv(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()
	setupEnv(t, srv.URL, "counter_future_allday")

	_, err := runRoot(t, "update", "--token", "from-flag")
	require.NoError(t, err)
	require.Equal(t, "Bearer from-flag", auth.Load())
}

func TestPollCmd_RunsRequestedCycles(t *testing.T) {
	srv, calls := asanaStub(t, twoTasks)
	setupEnv(t, srv.URL, "list_past_3day")

	out, err := runRoot(t, "poll", "--cycles", "2", "--interval", "10ms")
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())

	envs := decodeLines(t, out)
	require.Len(t, envs, 2)
	runIDs := map[string]bool{}
	for _, e := range envs {
		var cv cycleView
		require.NoError(t, json.Unmarshal(e.Data, &cv))
		require.Equal(t, "updated", cv.Outcome.Status)
		require.JSONEq(t, `["2024-01-06 - a"]`, string(cv.Snapshot.State))
		runIDs[cv.Outcome.RunID] = true
	}
	require.Len(t, runIDs, 2)
}

func TestPollCmd_FetchFailureKeepsPolling(t *testing.T) {
	srv, calls := asanaStub(t, `not json`)
	setupEnv(t, srv.URL, "counter_past_1day")

	out, err := runRoot(t, "poll", "--cycles", "2", "--interval", "10ms")
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())

	envs := decodeLines(t, out)
	require.Len(t, envs, 2)
	var cv cycleView
	require.NoError(t, json.Unmarshal(envs[1].Data, &cv))
	require.Equal(t, "fetch_failed", cv.Outcome.Status)
	require.NotEmpty(t, cv.Error)
	require.JSONEq(t, `null`, string(cv.Snapshot.State))
}

func TestRulesCmd_WorksWithoutToken(t *testing.T) {
	setupEnv(t, "", "counter_past_7day", "list_future_allday", "counter_sideways_3day")
	t.Setenv(app.EnvAccessToken, "")
	t.Setenv(app.EnvWorkspace, "")

	out, err := runRoot(t, "rules")
	require.NoError(t, err)

	envs := decodeLines(t, out)
	require.Len(t, envs, 1)
	var resp rulesResp
	require.NoError(t, json.Unmarshal(envs[0].Data, &resp))
	require.Equal(t, "counter_past_7day", resp.StateRule)
	require.Equal(t, 7, resp.FetchHorizonDays)
	require.Equal(t, "2024-01-01", resp.CompletedSince)
	require.Len(t, resp.Rules, 2)
	require.Len(t, resp.Dropped, 1)
	require.Equal(t, "timeframe", resp.Dropped[0].Reason)
}

func TestBuildRulesResp(t *testing.T) {
	today := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	resp := buildRulesResp([]string{"list_future_2day", "counter_past_allday", "counter_past_30day"}, today)

	require.Equal(t, "list_future_2day", resp.StateRule)
	require.Equal(t, 30, resp.FetchHorizonDays)
	require.Equal(t, "2023-12-09", resp.CompletedSince)
	require.Equal(t, []ruleResp{
		{Name: "list_future_2day", Kind: "list", Timeframe: "future", Horizon: "2day", Boundary: "2024-01-10"},
		{Name: "counter_past_allday", Kind: "counter", Timeframe: "past", Horizon: "all", Boundary: "all"},
		{Name: "counter_past_30day", Kind: "counter", Timeframe: "past", Horizon: "30day", Boundary: "2023-12-09"},
	}, resp.Rules)
	require.Empty(t, resp.Dropped)
}

func TestBuildRulesResp_NoRules(t *testing.T) {
	resp := buildRulesResp(nil, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))
	require.Empty(t, resp.Rules)
	require.Empty(t, resp.StateRule)
	require.Equal(t, 0, resp.FetchHorizonDays)
	require.Equal(t, "2024-01-08", resp.CompletedSince)
}

func TestHistoryCmd_RequiresHistoryDB(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	out, err := runRoot(t, "history")
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
	require.Contains(t, out, "history_db is not configured")
}

func TestHistoryCmd_ListsJournaledCycles(t *testing.T) {
	srv, _ := asanaStub(t, twoTasks)
	setupEnv(t, srv.URL, "counter_past_7day")
	dbPath := filepath.Join(t.TempDir(), "history.db")

	_, err := runRoot(t, "poll", "--cycles", "3", "--interval", "5ms", "--history-db", dbPath)
	require.NoError(t, err)

	out, err := runRoot(t, "history", "--limit", "2", "--history-db", dbPath)
	require.NoError(t, err)

	envs := decodeLines(t, out)
	require.Len(t, envs, 1)
	var resp struct {
		Sensor string `json:"sensor"`
		Count  int    `json:"count"`
		Cycles []struct {
			Status    string          `json:"status"`
			TaskCount int             `json:"task_count"`
			State     json.RawMessage `json:"state"`
		} `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(envs[0].Data, &resp))
	require.Equal(t, "asana", resp.Sensor)
	require.Equal(t, 2, resp.Count)
	for _, c := range resp.Cycles {
		require.Equal(t, "updated", c.Status)
		require.Equal(t, 2, c.TaskCount)
		require.JSONEq(t, `1`, string(c.State))
	}
}

func TestDoctorCmd_ReportsConfigAndJournal(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1", "counter_past_7day")
	t.Setenv(app.EnvWorkspace, "")
	dbPath := filepath.Join(t.TempDir(), "history.db")

	out, err := runRoot(t, "doctor", "--history-db", dbPath)
	require.NoError(t, err)

	envs := decodeLines(t, out)
	require.Len(t, envs, 1)
	var resp struct {
		ConfigOK    bool           `json:"config_ok"`
		ConfigErr   string         `json:"config_error"`
		TokenSet    bool           `json:"token_set"`
		HistoryPath string         `json:"history_path"`
		HistoryOK   bool           `json:"history_ok"`
		SchemaVer   int64          `json:"schema_version"`
		Cycles      map[string]int `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(envs[0].Data, &resp))
	require.False(t, resp.ConfigOK)
	require.Contains(t, resp.ConfigErr, "workspace")
	require.True(t, resp.TokenSet)
	require.Equal(t, dbPath, resp.HistoryPath)
	require.True(t, resp.HistoryOK)
	require.Equal(t, int64(1), resp.SchemaVer)
	require.Empty(t, resp.Cycles)
}

func TestJournalHealth_ClosedDBIsNotHealthy(t *testing.T) {
	db, err := store.InitDBWithPath(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	j := store.NewJournal(db)

	ver, counts, err := journalHealth(context.Background(), j)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
	require.Empty(t, counts)

	require.NoError(t, db.Close())
	_, _, err = journalHealth(context.Background(), j)
	require.Error(t, err)
}
