package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/taskforge/authcore/tokencache"
)

func TestChallengeStore_RoundTrip(t *testing.T) {
	clock := newTestClock()
	store := newMFAChallengeStore(tokencache.NewMemoryWithClock(clock.Now), clock.Now)
	ctx := context.Background()

	record := &mfaChallenge{
		AccountID: "user-1",
		ExpiresAt: clock.Now().Add(5 * time.Minute).Unix(),
	}
	if err := store.Save(ctx, "ch1", record, 5*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, "ch1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccountID != "user-1" || got.Attempts != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestChallengeStore_ConsumeIsOneShot(t *testing.T) {
	clock := newTestClock()
	store := newMFAChallengeStore(tokencache.NewMemoryWithClock(clock.Now), clock.Now)
	ctx := context.Background()

	record := &mfaChallenge{AccountID: "user-1", ExpiresAt: clock.Now().Add(time.Minute).Unix()}
	if err := store.Save(ctx, "ch1", record, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Consume(ctx, "ch1"); err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if err := store.Consume(ctx, "ch1"); !errors.Is(err, ErrMFAReplay) {
		t.Fatalf("second Consume: got %v, want ErrMFAReplay", err)
	}
}

func TestChallengeStore_RecordFailureBudget(t *testing.T) {
	clock := newTestClock()
	store := newMFAChallengeStore(tokencache.NewMemoryWithClock(clock.Now), clock.Now)
	ctx := context.Background()

	record := &mfaChallenge{AccountID: "user-1", ExpiresAt: clock.Now().Add(time.Minute).Unix()}
	if err := store.Save(ctx, "ch1", record, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for i := 0; i < 2; i++ {
		exceeded, err := store.RecordFailure(ctx, "ch1", 3)
		if err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
		if exceeded {
			t.Fatalf("failure %d: exceeded too early", i+1)
		}
	}

	exceeded, err := store.RecordFailure(ctx, "ch1", 3)
	if err != nil {
		t.Fatalf("final failure: %v", err)
	}
	if !exceeded {
		t.Fatal("expected budget exhaustion")
	}
	if _, err := store.Get(ctx, "ch1"); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("exhausted challenge still readable: %v", err)
	}
}

func TestChallengeStore_ExpiryAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMFAChallengeStore(tokencache.NewRedis(client, "ac", time.Second), time.Now)
	ctx := context.Background()

	record := &mfaChallenge{AccountID: "user-1", ExpiresAt: time.Now().Add(time.Minute).Unix()}
	if err := store.Save(ctx, "ch1", record, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Get(ctx, "ch1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "ch1"); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("got %v, want ErrMFAChallengeExpired", err)
	}
}

func TestChallengeRecord_EncodeDecode(t *testing.T) {
	in := &mfaChallenge{AccountID: "user-1", ExpiresAt: 1750000000, Attempts: 3}
	data, err := encodeMFAChallenge(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeMFAChallenge(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}

	if _, err := decodeMFAChallenge([]byte{99}); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := decodeMFAChallenge(data[:4]); err == nil {
		t.Fatal("expected truncation error")
	}
}
