// Command coldvault is an example CLI demonstrating the vault facade. It
// is ambient tooling, not part of the repository engine: no concrete
// object-store adapter ships with the engine, so this CLI only drives a
// local fixture directory loaded into an in-memory store, mirroring the
// object-store key layout on disk.
package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/coldvault/coldvault/objectstore/memstore"
	"github.com/coldvault/coldvault/vault"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "coldvault",
		Version:     gitCommitSHA,
		Description: "read-only client for a content-addressed, encrypted backup repository",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "fixture", Required: true, Usage: "directory mirroring the object-store key layout"},
			&cli.StringFlag{Name: "password", Required: true, Usage: "repository password"},
		},
		Commands: []*cli.Command{
			newSnapshotsCmd(),
			newLsCmd(),
			newCatCmd(),
		},
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}

// openFromFixture loads every regular file under dir into a memstore,
// keyed by its slash-separated path relative to dir, then opens a
// Repository against it.
func openFromFixture(ctx context.Context, dir, password string) (*vault.Repository, error) {
	store := memstore.New()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		store.Put(filepath.ToSlash(rel), body)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading fixture: %w", err)
	}
	return vault.Open(ctx, store, password)
}

func newSnapshotsCmd() *cli.Command {
	return &cli.Command{
		Name:  "snapshots",
		Usage: "list snapshots, newest first",
		Action: func(c *cli.Context) error {
			repo, err := openFromFixture(c.Context, c.String("fixture"), c.String("password"))
			if err != nil {
				return err
			}
			defer repo.Close()

			entries, err := repo.ListSnapshots(c.Context)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %s  %v\n", e.ID, e.Snapshot.Time.Format("2006-01-02T15:04:05Z"), e.Snapshot.Paths)
			}
			return nil
		},
	}
}

func newLsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "list the contents of a directory at a path",
		ArgsUsage: "<snapshot-id> <path>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("usage: ls <snapshot-id> <path>")
			}
			repo, err := openFromFixture(c.Context, c.String("fixture"), c.String("password"))
			if err != nil {
				return err
			}
			defer repo.Close()

			snap, err := findSnapshot(c.Context, repo, c.Args().Get(0))
			if err != nil {
				return err
			}
			result, err := repo.Browse(c.Context, snap, c.Args().Get(1))
			if err != nil {
				return err
			}
			for _, n := range result.Tree.Nodes {
				fmt.Println(n.Name)
			}
			return nil
		},
	}
}

func newCatCmd() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "print a file's contents",
		ArgsUsage: "<snapshot-id> <path>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("usage: cat <snapshot-id> <path>")
			}
			repo, err := openFromFixture(c.Context, c.String("fixture"), c.String("password"))
			if err != nil {
				return err
			}
			defer repo.Close()

			snap, err := findSnapshot(c.Context, repo, c.Args().Get(0))
			if err != nil {
				return err
			}
			result, err := repo.Browse(c.Context, snap, c.Args().Get(1))
			if err != nil {
				return err
			}
			if result.Node == nil {
				return fmt.Errorf("cannot cat the repository root")
			}
			rc, err := repo.ReadFile(c.Context, result.Node)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(os.Stdout, rc)
			return err
		},
	}
}

func findSnapshot(ctx context.Context, repo *vault.Repository, idHex string) (vault.Snapshot, error) {
	entries, err := repo.ListSnapshots(ctx)
	if err != nil {
		return vault.Snapshot{}, err
	}
	for _, e := range entries {
		if e.ID.String() == idHex {
			return e.Snapshot, nil
		}
	}
	return vault.Snapshot{}, fmt.Errorf("snapshot %s not found", idHex)
}
