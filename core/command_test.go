package core

import "testing"

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	id := registry.Register("test_command", "arg=%u", func(data *[]byte) error {
		called = true
		return nil
	})
	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	cmd, ok := registry.GetCommand(id)
	if !ok || cmd.Name != "test_command" {
		t.Fatalf("Failed to retrieve registered command: %+v", cmd)
	}
	if cmd.Signature() != "test_command arg=%u" {
		t.Errorf("Unexpected signature %q", cmd.Signature())
	}

	var data []byte
	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	if err := registry.Dispatch(999, &data); err == nil {
		t.Error("Expected error for unknown command ID")
	}
}

func TestCommandRegistrySequentialIDs(t *testing.T) {
	registry := NewCommandRegistry()
	noop := func(data *[]byte) error { return nil }

	id1 := registry.Register("command1", "arg1=%u", noop)
	id2 := registry.Register("command2", "", noop)
	id3 := registry.Register("response1", "val=%c", nil)
	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}

	if again := registry.Register("command1", "other=%u", noop); again != id1 {
		t.Errorf("Re-registering returned %d, want %d", again, id1)
	}
	if registry.Count() != 3 {
		t.Errorf("Count = %d", registry.Count())
	}
}

func TestDispatchRejectsResponses(t *testing.T) {
	registry := NewCommandRegistry()
	id := registry.Register("clock", "clock=%u", nil)

	var data []byte
	if err := registry.Dispatch(id, &data); err == nil {
		t.Error("Dispatching a response should fail")
	}
}

func TestCoreCommandBootstrapIDs(t *testing.T) {
	InitCoreCommands()
	for name, want := range map[string]uint16{"identify_response": 0, "identify": 1} {
		cmd, ok := GetGlobalRegistry().GetCommandByName(name)
		if !ok || cmd.ID != want {
			t.Errorf("%s: got %+v, want ID %d", name, cmd, want)
		}
	}
}
