package di

import "testing"

func TestSingletonResolvedOnce(t *testing.T) {
	c := New()
	calls := 0
	c.RegisterSingleton("vad-model", func() (any, error) {
		calls++
		return "model", nil
	})

	for i := 0; i < 3; i++ {
		if _, err := c.Resolve("vad-model", ""); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("singleton factory invoked %d times, want 1", calls)
	}
}

func TestSessionScopedCachedPerSession(t *testing.T) {
	c := New()
	calls := map[string]int{}
	c.RegisterSession("asr", func(sessionID string) (any, error) {
		calls[sessionID]++
		return "asr-for-" + sessionID, nil
	})

	c.Resolve("asr", "s1")
	c.Resolve("asr", "s1")
	c.Resolve("asr", "s2")

	if calls["s1"] != 1 || calls["s2"] != 1 {
		t.Fatalf("expected one factory call per session, got %v", calls)
	}
}

func TestTransientInvokedEveryResolve(t *testing.T) {
	c := New()
	calls := 0
	c.RegisterTransient("tool-ctx", func(args ...any) (any, error) {
		calls++
		return args, nil
	})

	c.Resolve("tool-ctx", "", "a")
	c.Resolve("tool-ctx", "", "b")

	if calls != 2 {
		t.Fatalf("transient factory invoked %d times, want 2", calls)
	}
}

func TestResolveUnregisteredNameFails(t *testing.T) {
	c := New()
	if _, err := c.Resolve("nope", "s1"); err == nil {
		t.Fatal("expected a registration error")
	}
}

func TestCleanupSessionRemovesOnlyThatSessionsEntries(t *testing.T) {
	c := New()
	c.RegisterSession("asr", func(sessionID string) (any, error) { return sessionID, nil })
	c.Resolve("asr", "s1")
	c.Resolve("asr", "s2")

	c.CleanupSession("s1")

	if _, cached := c.cache["s1:asr"]; cached {
		t.Fatal("expected s1:asr to be removed")
	}
	if _, cached := c.cache["s2:asr"]; !cached {
		t.Fatal("expected s2:asr to remain")
	}
}

func TestUpdateSessionServiceHotSwaps(t *testing.T) {
	c := New()
	c.RegisterSession("tts", func(sessionID string) (any, error) { return "original", nil })
	c.Resolve("tts", "s1")

	c.UpdateSessionService("tts", "s1", "swapped")

	v, err := c.Resolve("tts", "s1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v != "swapped" {
		t.Fatalf("got %v, want swapped", v)
	}
}

func TestUpdateSessionServiceOverridesASingletonForOneSessionOnly(t *testing.T) {
	c := New()
	c.RegisterSingleton("asr:reference", func() (any, error) { return "shared", nil })
	c.Resolve("asr:reference", "s1")
	c.Resolve("asr:reference", "s2")

	c.UpdateSessionService("asr:reference", "s1", "swapped-for-s1")

	v1, _ := c.Resolve("asr:reference", "s1")
	v2, _ := c.Resolve("asr:reference", "s2")
	if v1 != "swapped-for-s1" {
		t.Fatalf("s1 got %v, want swapped-for-s1", v1)
	}
	if v2 != "shared" {
		t.Fatalf("s2 got %v, want the untouched shared singleton", v2)
	}
}

func TestRecycleSingletonsForcesReconstructionButKeepsSessionOverrides(t *testing.T) {
	c := New()
	calls := 0
	c.RegisterSingleton("asr:reference", func() (any, error) {
		calls++
		return calls, nil
	})
	c.Resolve("asr:reference", "s1")
	c.UpdateSessionService("asr:reference", "s2", "swapped-for-s2")

	c.RecycleSingletons()

	v, err := c.Resolve("asr:reference", "s1")
	if err != nil {
		t.Fatalf("resolve after recycle: %v", err)
	}
	if v != 2 {
		t.Fatalf("expected the factory to run again after recycle, got %v", v)
	}
	v2, err := c.Resolve("asr:reference", "s2")
	if err != nil {
		t.Fatalf("resolve s2 after recycle: %v", err)
	}
	if v2 != "swapped-for-s2" {
		t.Fatalf("expected s2's hot-swap override to survive recycle, got %v", v2)
	}
}

func TestIsRegistered(t *testing.T) {
	c := New()
	c.RegisterSingleton("llm:gemini", func() (any, error) { return nil, nil })

	if !c.IsRegistered("llm:gemini") {
		t.Fatal("expected llm:gemini to be registered")
	}
	if c.IsRegistered("llm:nonexistent") {
		t.Fatal("expected llm:nonexistent to be unregistered")
	}
}
