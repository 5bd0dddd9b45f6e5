package board

import "testing"

func TestValidateAcceptsSupportedMachine(t *testing.T) {
	for _, name := range SupportedMachines {
		c := Config{MachineName: name}
		if err := c.Validate(); err != nil {
			t.Fatalf("expected %q to validate, got %v", name, err)
		}
	}
}

func TestValidateRejectsUnknownMachine(t *testing.T) {
	c := Config{MachineName: "raspberry-pi-zero"}
	if err := c.Validate(); err != errUnknownMachine {
		t.Fatalf("expected errUnknownMachine, got %v", err)
	}
}

func TestActiveIsSupported(t *testing.T) {
	if err := Active.Validate(); err != nil {
		t.Fatalf("default Active configuration does not validate: %v", err)
	}
}
