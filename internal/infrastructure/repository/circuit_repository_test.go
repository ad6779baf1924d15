package repository_test

import (
	"errors"
	"testing"

	"ikedadada/go-tor4iot/internal/domain/entity"
	repoif "ikedadada/go-tor4iot/internal/domain/repository"
	"ikedadada/go-tor4iot/internal/domain/value_object"
	"ikedadada/go-tor4iot/internal/infrastructure/repository"
)

func TestCircuitRepo_Save_Find_Delete(t *testing.T) {
	repo := repository.NewCircuitRepo()
	id := value_object.CircuitID(17)
	c := entity.NewCircuit(id)
	// Save
	if err := repo.Save(c); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	// Find
	got, err := repo.Find(id)
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if got != c {
		t.Errorf("Find returned wrong circuit")
	}
	if _, err := repo.Find(18); !errors.Is(err, repoif.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other id, got %v", err)
	}
	// Delete
	if err := repo.Delete(id); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.Find(id); !errors.Is(err, repoif.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCircuitRepo_SingleSlot(t *testing.T) {
	repo := repository.NewCircuitRepo()
	if _, err := repo.Active(); !repoif.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound on empty repo, got %v", err)
	}
	first := entity.NewCircuit(17)
	second := entity.NewCircuit(18)
	_ = repo.Save(first)
	_ = repo.Save(second)

	got, err := repo.Active()
	if err != nil || got != second {
		t.Fatalf("Active returned %v, %v", got, err)
	}
	if _, err := repo.Find(17); !repoif.IsNotFound(err) {
		t.Errorf("replaced circuit still reachable")
	}
	// Deleting a stale id leaves the slot alone.
	_ = repo.Delete(17)
	if _, err := repo.Active(); err != nil {
		t.Errorf("slot cleared by stale delete: %v", err)
	}
	if err := repo.Save(nil); !errors.Is(err, repoif.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
