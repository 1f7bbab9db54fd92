package pulsekit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulsekit/pulsekit/internal/core"
)

// The builder tests run against an unreachable endpoint; the SDK must
// come up, degrade gracefully, and tear down cleanly regardless.

func buildTestKit(t *testing.T) OpenKit {
	t.Helper()
	kit := NewBuilder("http://127.0.0.1:1/mbeacon", "test-app", "12345").
		WithApplicationName("Test App").
		WithOperatingSystem("test-os").
		Build()
	t.Cleanup(kit.Shutdown)
	return kit
}

func TestBuilderProducesWorkingInstance(t *testing.T) {
	kit := buildTestKit(t)

	assert.NotNil(t, kit)
	assert.False(t, kit.IsInitialized(), "unreachable endpoint cannot initialize")

	session := kit.CreateSession("")
	assert.NotNil(t, session)

	action := session.EnterAction("work")
	action.ReportIntValue("n", 1)
	assert.Nil(t, action.LeaveAction())
	session.End()
}

func TestWaitForInitCompletionTimesOut(t *testing.T) {
	kit := buildTestKit(t)
	assert.False(t, kit.WaitForInitCompletionTimeout(50))
}

func TestShutdownIsIdempotentAndDegradesToSentinels(t *testing.T) {
	kit := buildTestKit(t)

	kit.Shutdown()
	kit.Shutdown()

	session := kit.CreateSession("")
	assert.Equal(t, core.NullSession, session, "post-shutdown sessions are the null sentinel")
	assert.Equal(t, core.NullRootAction, session.EnterAction("x"))
	session.End()
}

func TestShutdownCompletesPendingInit(t *testing.T) {
	kit := buildTestKit(t)
	kit.Shutdown()
	assert.False(t, kit.WaitForInitCompletion(), "shutdown before init must release waiters with false")
}

func TestMultipleInstancesShareGlobalInit(t *testing.T) {
	kit1 := buildTestKit(t)
	kit2 := buildTestKit(t)

	s1 := kit1.CreateSession("")
	s2 := kit2.CreateSession("")
	s1.End()
	s2.End()

	kit1.Shutdown()
	// kit2 must stay functional after kit1 released its global ref.
	s3 := kit2.CreateSession("")
	assert.NotEqual(t, core.NullSession, s3)
	s3.End()
	kit2.Shutdown()
}
