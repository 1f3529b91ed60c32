package models

import "testing"

func TestWorkflowInputValidate(t *testing.T) {
	tc := []struct {
		name    string
		input   *WorkflowInput
		wantErr bool
	}{
		{name: "valid", input: &WorkflowInput{Contributors: []string{"u1"}, PlaylistID: "P", State: "S1"}},
		{name: "nil", input: nil, wantErr: true},
		{name: "no contributors", input: &WorkflowInput{PlaylistID: "P", State: "S1"}},
		{name: "no playlist", input: &WorkflowInput{Contributors: []string{"u1"}, State: "S1"}, wantErr: true},
		{name: "no state", input: &WorkflowInput{Contributors: []string{"u1"}, PlaylistID: "P"}, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkflowInputClone(t *testing.T) {
	in := WorkflowInput{Contributors: []string{"u1", "u2"}, PlaylistID: "P", State: "S1"}
	c := in.Clone()
	c.Contributors[0] = "changed"

	if in.Contributors[0] != "u1" {
		t.Errorf("clone shares contributor slice with original")
	}
}

func TestNames(t *testing.T) {
	if got := AccessTokenSecret("S1"); got != "S1-AccessToken" {
		t.Errorf("AccessTokenSecret = %q", got)
	}
	if got := RefreshTokenSecret("S1"); got != "S1-RefreshToken" {
		t.Errorf("RefreshTokenSecret = %q", got)
	}
	if got := InstanceID("S1"); got != "playlist-cleanup:S1" {
		t.Errorf("InstanceID = %q", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusRunning.Terminal() {
		t.Error("running should not be terminal")
	}
	if !StatusFailed.Terminal() || !StatusTerminated.Terminal() {
		t.Error("failed and terminated should be terminal")
	}
}
