package transfer_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/wecom-tools/quarkbot/internal/quark"
	"github.com/wecom-tools/quarkbot/internal/store"
	"github.com/wecom-tools/quarkbot/internal/transfer"
)

// fakeStore serves a fixed recent-folders list.
type fakeStore struct {
	recent  []string
	touched []string
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) GetSetting(ctx context.Context, key string) (string, error) {
	return "", store.ErrNotFound
}
func (f *fakeStore) PutSetting(ctx context.Context, key, value string) error { return nil }
func (f *fakeStore) ListBannedKeywords(ctx context.Context) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) AddBannedKeywords(ctx context.Context, words []string) (int, error) {
	return len(words), nil
}
func (f *fakeStore) RecentFolders(ctx context.Context, limit int) ([]string, error) {
	return f.recent, nil
}
func (f *fakeStore) TouchRecentFolder(ctx context.Context, fid string, keep int) error {
	f.touched = append(f.touched, fid)
	return nil
}

var _ store.Store = (*fakeStore)(nil)

func TestScanRecent(t *testing.T) {
	drive := &fakeDrive{
		destList: map[string][]quark.Entry{
			"r1": {
				{FID: "f1", FileName: "clean.mp4"},
				{FID: "f2", FileName: "spam-ad.txt"},
				{FID: "d1", FileName: "nested", Dir: true},
			},
			"d1": {
				{FID: "f3", FileName: "more spam inside.txt"},
				{FID: "f4", FileName: "keep.txt"},
			},
			"r2": {
				{FID: "f5", FileName: "untouched.mkv"},
			},
		},
	}
	st := &fakeStore{recent: []string{"r1", "r2"}}
	orch := transfer.New(drive, st, transfer.NewKeywords([]string{"spam"}), transfer.Options{}, nil)

	sum, err := orch.ScanRecent(context.Background())
	if err != nil {
		t.Fatalf("ScanRecent failed: %v", err)
	}

	if sum.Folders != 2 {
		t.Errorf("Folders = %d, want 2", sum.Folders)
	}
	if sum.Scanned != 6 {
		t.Errorf("Scanned = %d, want 6", sum.Scanned)
	}
	if sum.Matched != 2 || sum.Deleted != 2 {
		t.Errorf("Matched/Deleted = %d/%d, want 2/2", sum.Matched, sum.Deleted)
	}
	if len(drive.deleted) != 2 {
		t.Errorf("deleted fids = %v", drive.deleted)
	}
}

func TestScanRecent_DepthBound(t *testing.T) {
	// A chain of nested folders deeper than the recursion bound: folders
	// at the bound are not descended into, so their contents survive.
	destList := map[string][]quark.Entry{}
	for i := 0; i < 12; i++ {
		entries := []quark.Entry{
			{FID: fmt.Sprintf("s%d", i), FileName: fmt.Sprintf("spam-%d.txt", i)},
		}
		if i < 11 {
			entries = append(entries, quark.Entry{
				FID: fmt.Sprintf("d%d", i+1), FileName: fmt.Sprintf("level-%d", i+1), Dir: true,
			})
		}
		destList[fmt.Sprintf("d%d", i)] = entries
	}
	drive := &fakeDrive{destList: destList}
	st := &fakeStore{recent: []string{"d0"}}
	orch := transfer.New(drive, st, transfer.NewKeywords([]string{"spam"}), transfer.Options{}, nil)

	sum, err := orch.ScanRecent(context.Background())
	if err != nil {
		t.Fatalf("ScanRecent failed: %v", err)
	}

	// Depths 0..9 are listed, one banned file each.
	if sum.Matched != 10 || sum.Deleted != 10 {
		t.Errorf("Matched/Deleted = %d/%d, want 10/10", sum.Matched, sum.Deleted)
	}
	for _, fid := range drive.deleted {
		if fid == "s10" || fid == "s11" {
			t.Errorf("entry beyond the depth bound was deleted: %s", fid)
		}
	}
}

func TestScanRecent_NoStore(t *testing.T) {
	orch := transfer.New(&fakeDrive{}, nil, transfer.NewKeywords([]string{"spam"}), transfer.Options{}, nil)

	sum, err := orch.ScanRecent(context.Background())
	if err != nil {
		t.Fatalf("ScanRecent failed: %v", err)
	}
	if sum.Folders != 0 || sum.Scanned != 0 {
		t.Errorf("summary = %+v, want zeroes", sum)
	}
}
