package engine

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/models"
)

// fakeEngine returns a fixed outcome and counts calls.
type fakeEngine struct {
	name    string
	outcome Outcome
	calls   int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(_ context.Context, _ *models.FetchRequest) Outcome {
	f.calls++
	return f.outcome
}

func TestDispatch_InvalidURLNeverCallsEngines(t *testing.T) {
	first := &fakeEngine{name: "http", outcome: OutcomeOK(200, "x")}
	d := NewDispatcher([]Engine{first}, true)

	for _, raw := range []string{"", "   ", "notaurl", "httpfoo", "http:/x", "ftp://example.com"} {
		resp, err := d.Dispatch(context.Background(), raw)
		require.Error(t, err, raw)
		assert.Nil(t, resp)
		assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput), raw)
	}
	assert.Equal(t, 0, first.calls)
}

func TestDispatch_FirstSuccessWins(t *testing.T) {
	first := &fakeEngine{name: "http", outcome: OutcomeOK(200, "<html>ok</html>")}
	second := &fakeEngine{name: "rod", outcome: OutcomeOK(200, "other")}
	d := NewDispatcher([]Engine{first, second}, true)

	resp, err := d.Dispatch(context.Background(), "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", resp.Body)
	assert.Equal(t, "http", resp.Engine)
	assert.Equal(t, 0, second.calls)
}

func TestDispatch_FallsBackAndStopsAtSecond(t *testing.T) {
	first := &fakeEngine{name: "http", outcome: OutcomeInternalError("Exception", "connection reset")}
	second := &fakeEngine{name: "rod", outcome: OutcomeOK(200, "rendered")}
	third := &fakeEngine{name: "chromedp", outcome: OutcomeOK(200, "never")}
	d := NewDispatcher([]Engine{first, second, third}, true)

	resp, err := d.Dispatch(context.Background(), "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, "rendered", resp.Body)
	assert.Equal(t, "rod", resp.Engine)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
}

func TestDispatch_AllFailReturnsLastResponse(t *testing.T) {
	first := &fakeEngine{name: "http", outcome: OutcomeOK(http.StatusForbidden, "denied")}
	second := &fakeEngine{name: "rod", outcome: OutcomeInternalError("Exception", "crashed")}
	third := &fakeEngine{name: "chromedp", outcome: OutcomeNotFound("net::ERR_NAME_NOT_RESOLVED")}
	d := NewDispatcher([]Engine{first, second, third}, true)

	resp, err := d.Dispatch(context.Background(), "https://nowhere.test")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", resp.ErrorName)
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", resp.ErrorMessage)
	assert.Equal(t, "chromedp", resp.Engine)
	assert.Empty(t, resp.Body)
}

func TestDispatch_NonOKStatusIsNotSuccess(t *testing.T) {
	first := &fakeEngine{name: "http", outcome: OutcomeOK(http.StatusServiceUnavailable, "busy")}
	d := NewDispatcher([]Engine{first}, true)

	resp, err := d.Dispatch(context.Background(), "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.ErrorName)
	assert.Equal(t, "Service Unavailable", resp.ErrorMessage)
	assert.Empty(t, resp.Body)
}

func TestDispatch_NoEngines(t *testing.T) {
	d := NewDispatcher(nil, true)
	_, err := d.Dispatch(context.Background(), "https://a.test")
	assert.True(t, models.IsCode(err, models.ErrCodeInternal))
}

func TestDispatch_CanceledContext(t *testing.T) {
	first := &fakeEngine{name: "http", outcome: OutcomeOK(200, "x")}
	d := NewDispatcher([]Engine{first}, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, "https://a.test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, first.calls)
}

func TestDispatcher_Engines(t *testing.T) {
	d := NewDispatcher([]Engine{&fakeEngine{name: "http"}, &fakeEngine{name: "rod"}}, true)
	assert.Equal(t, []string{"http", "rod"}, d.Engines())
}

func TestClassifyDriverError(t *testing.T) {
	o := classifyDriverError(errors.New("page load error net::ERR_NAME_NOT_RESOLVED"))
	assert.Equal(t, KindNotFound, o.Kind)
	assert.Equal(t, http.StatusNotFound, o.StatusCode)

	o = classifyDriverError(errors.New("websocket closed"))
	assert.Equal(t, KindInternalError, o.Kind)
	assert.Equal(t, models.StatusInternalError, o.StatusCode)
	assert.Equal(t, "WebDriverException", o.ErrorName)
}
