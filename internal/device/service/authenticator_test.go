package service

import (
	"context"
	"testing"
	"time"
)

func TestAuthenticate_MissingCredentials(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range []struct{ key, device string }{{"", "d1"}, {"k", ""}, {" ", " "}} {
		_, err := env.auth.Authenticate(context.Background(), tc.key, tc.device)
		requireServiceError(t, err, KindUnauthorized, CodeMissingCredentials)
	}
}

func TestAuthenticate_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "u@x.com", "d1")

	_, err := env.auth.Authenticate(context.Background(), "unknown", "d1")
	requireServiceError(t, err, KindUnauthorized, CodeInvalidCredentials)

	_, err = env.auth.Authenticate(context.Background(), res.Device.APIKey, "d2")
	requireServiceError(t, err, KindUnauthorized, CodeInvalidCredentials)
}

func TestAuthenticate_Superseded(t *testing.T) {
	env := newTestEnv(t)
	first := env.login(t, "u@x.com", "d1")
	env.clock.Advance(time.Second)
	env.login(t, "u@x.com", "d2")

	_, err := env.auth.Authenticate(context.Background(), first.Device.APIKey, "d1")
	e := requireServiceError(t, err, KindUnauthorized, CodeSuperseded)
	if e.LoggedOutAt == nil || !e.LoggedOutAt.Equal(t0.Add(time.Second)) {
		t.Errorf("logged_out_at = %v", e.LoggedOutAt)
	}
	if e.CooldownRemainingSeconds != nil {
		t.Error("authentication never reports a cooldown")
	}
}

func TestAuthenticate_SupersededWinsOverExpired(t *testing.T) {
	env := newTestEnv(t)
	first := env.login(t, "u@x.com", "d1")
	env.login(t, "u@x.com", "d2")
	env.clock.Advance(DefaultValidity + time.Hour)

	_, err := env.auth.Authenticate(context.Background(), first.Device.APIKey, "d1")
	requireServiceError(t, err, KindUnauthorized, CodeSuperseded)
}

func TestAuthenticate_Expired(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "u@x.com", "d1")

	env.clock.Advance(DefaultValidity - time.Second)
	if _, err := env.auth.Authenticate(context.Background(), res.Device.APIKey, "d1"); err != nil {
		t.Fatalf("one second before expiry: %v", err)
	}
	env.clock.Advance(time.Second)
	_, err := env.auth.Authenticate(context.Background(), res.Device.APIKey, "d1")
	requireServiceError(t, err, KindForbidden, CodeExpired)
}

func TestAuthenticate_Success(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "u@x.com", "d1")
	d, err := env.auth.Authenticate(context.Background(), res.Device.APIKey, " d1 ")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if d.AccountID != "u@x.com" || d.DeviceID != "d1" {
		t.Errorf("device = %+v", d)
	}
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	env := newTestEnvWithRepo(t, nil, brokenRepo{})
	_, err := env.auth.Authenticate(context.Background(), "k", "d1")
	requireServiceError(t, err, KindTransient, CodeUnavailable)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "u@x.com", "d1")

	st, err := env.status.Status(context.Background(), res.Device.APIKey, "d1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.IsActive || st.AccountID != "u@x.com" || st.DeviceID != "d1" || !st.ExpiresAt.Equal(res.Device.ExpiresAt) {
		t.Errorf("status = %+v", st)
	}

	if _, err := env.admin.Activate(context.Background(), "u@x.com", "d1"); err != nil {
		t.Fatal(err)
	}
	st, err = env.status.Status(context.Background(), res.Device.APIKey, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsActive {
		t.Error("status should report activation")
	}

	_, err = env.status.Status(context.Background(), "", "d1")
	requireServiceError(t, err, KindUnauthorized, CodeMissingCredentials)
}

func TestStatus_PollingHasNoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	res := env.login(t, "u@x.com", "d1")
	before := env.record(t, "u@x.com", "d1")
	for i := 0; i < 50; i++ {
		if _, err := env.status.Status(context.Background(), res.Device.APIKey, "d1"); err != nil {
			t.Fatal(err)
		}
	}
	after := env.record(t, "u@x.com", "d1")
	if after.Version != before.Version || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("polling must not write")
	}
}
