package adapter

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/logging"
)

type fakeMemoryProbe struct {
	status ProbeStatus
	err    error
}

func (f fakeMemoryProbe) GetStatus(ctx context.Context) (ProbeStatus, error) {
	return f.status, f.err
}

func newTestLLMAdapter() *LLMAdapter {
	return NewLLMAdapter(logging.New(logrus.New()), "/no/such/runtime", nil, fakeMemoryProbe{})
}

func TestLLMAdapterEstimateUsesNamingHeuristic(t *testing.T) {
	a := newTestLLMAdapter()
	mb, err := a.Estimate(context.Background(), "llama-3-70b-instruct.Q4_K_M")
	require.NoError(t, err)
	require.Greater(t, mb, uint64(0))
}

func TestLLMAdapterEstimateFallsBackWhenNoSizePattern(t *testing.T) {
	a := newTestLLMAdapter()
	mb, err := a.Estimate(context.Background(), "my-custom-finetune")
	require.NoError(t, err)
	// Falls back to the conservative 7B estimate.
	require.Greater(t, mb, uint64(0))
}

func TestLLMAdapterUnloadRejectsWrongInstanceType(t *testing.T) {
	a := newTestLLMAdapter()
	_, err := a.Unload(context.Background(), "not-an-llm-instance")
	require.Error(t, err)
}

func TestLLMAdapterGenerateRejectsWrongInstanceType(t *testing.T) {
	a := newTestLLMAdapter()
	_, err := a.Generate(context.Background(), "not-an-llm-instance", GenerateTextParams{Prompt: "hi"})
	require.Error(t, err)
}

func TestLLMAdapterGenerateRejectsWrongParamsType(t *testing.T) {
	a := newTestLLMAdapter()
	inst := &LLMInstance{ModelID: "some-model", Socket: "/tmp/nonexistent.sock"}
	_, err := a.Generate(context.Background(), inst, "not-the-right-params-type")
	require.Error(t, err)
}
