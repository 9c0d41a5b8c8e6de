package keyring

import (
	"errors"
	"testing"

	gokeyring "github.com/zalando/go-keyring"
)

func TestSetAndGetConnectionString(t *testing.T) {
	gokeyring.MockInit()

	want := "postgres://testuser@localhost:5432/testdb?sslmode=disable"
	if err := SetConnectionString(want); err != nil {
		t.Fatalf("SetConnectionString() failed: %v", err)
	}

	got, err := GetConnectionString()
	if err != nil {
		t.Fatalf("GetConnectionString() failed: %v", err)
	}
	if got != want {
		t.Errorf("GetConnectionString() = %q, want %q", got, want)
	}
}

func TestSetEmptyValues(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString(""); err == nil {
		t.Error("SetConnectionString(\"\") should return an error")
	}
	if err := SetSession(""); err == nil {
		t.Error("SetSession(\"\") should return an error")
	}
}

func TestNotFound(t *testing.T) {
	gokeyring.MockInit()

	_ = DeleteConnectionString()
	_ = DeleteSession()

	if _, err := GetConnectionString(); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConnectionString() error = %v, want %v", err, ErrNotFound)
	}
	if _, err := GetSession(); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession() error = %v, want %v", err, ErrNotFound)
	}
	if err := DeleteSession(); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSession() error = %v, want %v", err, ErrNotFound)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	gokeyring.MockInit()

	if err := SetSession(`{"access_token":"abc"}`); err != nil {
		t.Fatal(err)
	}
	got, err := GetSession()
	if err != nil || got != `{"access_token":"abc"}` {
		t.Errorf("GetSession() = %q, %v", got, err)
	}

	if err := DeleteSession(); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := GetSession(); !errors.Is(err, ErrNotFound) {
		t.Error("session should be gone after delete")
	}
}

func TestIsAvailable(t *testing.T) {
	gokeyring.MockInit()
	if !IsAvailable() {
		t.Error("IsAvailable() should be true with the mock keyring")
	}
}
