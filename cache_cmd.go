package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrate/internal/cache"
)

var (
	cacheListJSON bool
	cachePackZstd int

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and share the narration cache",
		Args:  cobra.NoArgs,
	}

	cacheListCmd = &cobra.Command{
		Use:   "list",
		Short: "List cached narrations",
		Args:  cobra.NoArgs,
		RunE:  runCacheList,
	}

	cachePathCmd = &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			dir, err := cacheDir()
			if err != nil {
				return err
			}
			fmt.Println(dir)
			return nil
		},
	}

	cacheRmCmd = &cobra.Command{
		Use:   "rm KEY...",
		Short: "Remove entries and their audio by key or unique key prefix",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCacheRm,
	}

	cachePackCmd = &cobra.Command{
		Use:     "pack FILE",
		Short:   "Write the cache to a .tar.zst archive",
		Example: paragraph("narrate cache pack voiceovers.tar.zst"),
		Args:    cobra.ExactArgs(1),
		RunE:    runCachePack,
	}

	cacheUnpackCmd = &cobra.Command{
		Use:   "unpack FILE",
		Short: "Merge a .tar.zst archive into the cache",
		Args:  cobra.ExactArgs(1),
		RunE:  runCacheUnpack,
	}
)

func cacheDir() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return filepath.Abs(cfg.CacheDir)
}

func runCacheList(*cobra.Command, []string) error {
	dir, err := cacheDir()
	if err != nil {
		return err
	}
	records, err := cache.NewDiskStore().List(dir)
	if err != nil {
		return err
	}

	if cacheListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "    ")
		return enc.Encode(records)
	}

	var total int64
	for _, r := range records {
		mark := okMark
		if r.Missing {
			mark = failMark
		}
		total += r.Size
		fmt.Printf("%s %s %-8s %5.1fs %6s  %s\n",
			mark, shortKey(r.Key), r.InputData.Voice, r.Duration, humanize.Bytes(uint64(r.Size)), truncate(r.InputText, 48))
	}
	fmt.Println(faint(fmt.Sprintf("%d entries, %s in %s", len(records), humanize.Bytes(uint64(total)), dir)))
	return nil
}

func runCacheRm(_ *cobra.Command, args []string) error {
	dir, err := cacheDir()
	if err != nil {
		return err
	}
	store := cache.NewDiskStore()
	records, err := store.List(dir)
	if err != nil {
		return err
	}

	for _, prefix := range args {
		var matches []string
		for _, r := range records {
			if strings.HasPrefix(r.Key, prefix) {
				matches = append(matches, r.Key)
			}
		}
		switch len(matches) {
		case 0:
			return fmt.Errorf("no entry matches %q", prefix)
		case 1:
			if err := store.Delete(dir, matches[0]); err != nil {
				return err
			}
			fmt.Printf("%s removed %s\n", okMark, shortKey(matches[0]))
		default:
			return fmt.Errorf("%q matches %d entries", prefix, len(matches))
		}
	}
	return nil
}

func runCachePack(_ *cobra.Command, args []string) error {
	dir, err := cacheDir()
	if err != nil {
		return err
	}
	out := expandPath(args[0])
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("unable to create archive: %w", err)
	}

	n, err := cache.Pack(dir, f, cache.PackOptions{Level: cachePackZstd})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return err
	}

	size := ""
	if info, err := os.Stat(out); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Printf("%s packed %d entries into %s %s\n", okMark, n, out, faint(size))
	return nil
}

func runCacheUnpack(_ *cobra.Command, args []string) error {
	dir, err := cacheDir()
	if err != nil {
		return err
	}
	f, err := os.Open(expandPath(args[0]))
	if err != nil {
		return fmt.Errorf("unable to open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck

	n, err := cache.Unpack(f, dir)
	if errors.Is(err, cache.ErrUnsafeArchivePath) {
		return fmt.Errorf("refusing archive: %w", err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s merged %d entries into %s\n", okMark, n, dir)
	return nil
}

func init() {
	cacheListCmd.Flags().BoolVar(&cacheListJSON, "json", false, "print records as JSON")
	cachePackCmd.Flags().IntVarP(&cachePackZstd, "level", "l", 0, "zstd level 1-22 (default balanced)")
	cacheCmd.AddCommand(cacheListCmd, cachePathCmd, cacheRmCmd, cachePackCmd, cacheUnpackCmd)
}
