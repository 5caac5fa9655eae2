// Command xpk packs, inspects and stores xpkd assets.
//
//	xpk [-config store.yaml] [-v] <command> [flags] [args]
//
// Commands:
//
//	pack     pack a file (or stdin) into a container
//	unpack   unpack a container, including nested ones
//	stat     print the container header
//	advise   benchmark every mode against the input
//	put      store a file in the asset store
//	get      read an asset from the asset store
//	ls       list stored assets
//	offload  move hot assets to the cold tier of a tiered store
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/nxengine/xpk"
)

var (
	configPath = flag.String("config", "", "asset store YAML config (default: file backend in ./assets)")
	verbose    = flag.Bool("v", false, "enable debug logging")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := run(context.Background(), cmd, args, logger); err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: xpk [-config file] [-v] <pack|unpack|stat|advise|put|get|ls|offload> [flags] [args]\n")
	flag.PrintDefaults()
}

func run(ctx context.Context, cmd string, args []string, logger *slog.Logger) error {
	switch cmd {
	case "pack":
		return packCmd(args, logger)
	case "unpack":
		return unpackCmd(args, logger)
	case "stat":
		return statCmd(args)
	case "advise":
		return adviseCmd(args, logger)
	case "put", "get", "ls", "offload":
		return storeCmd(ctx, cmd, args, logger)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write to stdout: %w", err)
		}
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}

func packCmd(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	mode := fs.String("mode", "nested", "pack mode: rank, nested or backref")
	auto := fs.Bool("auto", false, "try every mode and keep the smallest")
	out := fs.String("o", "-", "output file")
	tableBits := fs.Int("table-bits", 0, "back-reference table size as a power of two")
	rawOK := fs.Bool("raw-ok", true, "write the input unchanged when it does not pack")
	fs.Parse(args)

	src, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	codec := xpk.NewCodec(xpk.Config{TableBits: *tableBits, Logger: logger})

	var packed []byte
	var used xpk.Mode
	if *auto {
		packed, used, err = codec.PackBest(src)
	} else {
		used, err = xpk.ParseMode(*mode)
		if err != nil {
			return err
		}
		packed, err = codec.Pack(src, used)
	}

	if errors.Is(err, xpk.ErrNotCompressible) {
		if !*rawOK {
			return err
		}
		if xpk.IsPacked(src) {
			wrapped, err := codec.WrapRaw(src)
			if err != nil {
				return err
			}
			logger.Info("input does not pack and starts with the signature, writing it wrapped; unpack with -once",
				"size", len(src), "wrapped", len(wrapped))
			return writeOutput(*out, wrapped)
		}
		logger.Info("input does not pack, writing raw", "size", len(src))
		return writeOutput(*out, src)
	}
	if err != nil {
		return err
	}

	logger.Info("packed", "mode", xpk.Mode(packed[4]), "requested", used,
		"raw", len(src), "packed", len(packed),
		"ratio", fmt.Sprintf("%.2f", float64(len(src))/float64(len(packed))))
	return writeOutput(*out, packed)
}

func unpackCmd(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("unpack", flag.ExitOnError)
	out := fs.String("o", "-", "output file")
	once := fs.Bool("once", false, "unpack a single container level")
	maxDepth := fs.Int("max-depth", 0, "maximum nested containers to unpack")
	fs.Parse(args)

	buf, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	codec := xpk.NewCodec(xpk.Config{MaxDepth: *maxDepth, Logger: logger})

	var data []byte
	if *once {
		data, err = codec.Unpack(buf)
	} else {
		data, err = codec.Load(buf)
	}
	if err != nil {
		return err
	}
	return writeOutput(*out, data)
}

func statCmd(args []string) error {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)
	fs.Parse(args)

	buf, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	if !xpk.IsPacked(buf) {
		fmt.Printf("not packed: %d bytes\n", len(buf))
		return nil
	}

	h, err := xpk.ParseHeader(buf)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "mode\t%s\n", h.Mode)
	fmt.Fprintf(w, "packed size\t%d\n", h.PackedSize)
	fmt.Fprintf(w, "raw size\t%d\n", h.RawSize)
	switch h.Mode {
	case xpk.ModeRank:
		fmt.Fprintf(w, "dictionary\t%d\n", h.DictSize)
	case xpk.ModeNestedRank:
		fmt.Fprintf(w, "dictionary\t%d\n", h.DictSize)
		fmt.Fprintf(w, "length dictionary\t%d\n", h.DictSize2)
	case xpk.ModeBackref:
		inner := "packed"
		if h.Inner != 0 {
			inner = "raw"
		}
		fmt.Fprintf(w, "tokens\t%s\n", inner)
	}
	if h.PackedSize > 0 {
		fmt.Fprintf(w, "ratio\t%.2f\n", float64(h.RawSize)/float64(h.PackedSize))
	}
	return w.Flush()
}

func adviseCmd(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("advise", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print JSON")
	fs.Parse(args)

	src, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	advice, err := xpk.NewCodec(xpk.Config{Logger: logger}).Advise(src)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(advice)
	}

	fmt.Printf("%d bytes, %d distinct, %.2f bits/byte, snappy %d bytes\n",
		advice.RawSize, advice.Distinct, advice.Entropy, advice.SnappySize)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tSTORED\tSIZE\tRATIO\tPACK\tUNPACK")
	for _, b := range advice.Benchmarks {
		if !b.Compressible {
			fmt.Fprintf(w, "%s\t-\t%d\t-\t%s\t-\n", b.Mode, b.PackedSize, b.PackTime)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\t%s\n",
			b.Mode, b.Stored, b.PackedSize, b.Ratio, b.PackTime, b.UnpackTime)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println(advice.Reasoning)
	return nil
}

func openStore(logger *slog.Logger) (*xpk.AssetStore, error) {
	cfg := xpk.DefaultStoreConfig()
	if *configPath != "" {
		var err error
		cfg, err = xpk.LoadStoreConfig(*configPath)
		if err != nil {
			return nil, err
		}
	}
	cfg.Logger = logger
	return xpk.OpenAssetStore(cfg)
}

func storeCmd(ctx context.Context, cmd string, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	out := fs.String("o", "-", "output file (get)")
	long := fs.Bool("l", false, "long listing (ls)")
	fs.Parse(args)

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	switch cmd {
	case "put":
		if fs.NArg() < 1 {
			return errors.New("usage: xpk put <key> [file]")
		}
		data, err := readInput(fs.Arg(1))
		if err != nil {
			return err
		}
		info, err := store.Put(ctx, fs.Arg(0), data)
		if err != nil {
			return err
		}
		logger.Info("stored", "key", info.Key, "packed", info.Packed, "sealed", info.Sealed,
			"mode", info.Mode, "raw", info.RawSize, "stored", info.Size)
		return nil

	case "get":
		if fs.NArg() < 1 {
			return errors.New("usage: xpk get <key>")
		}
		data, err := store.Get(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return writeOutput(*out, data)

	case "ls":
		return listAssets(ctx, store, fs.Arg(0), *long)

	default: // offload
		tiered, ok := store.Backend().(*xpk.TieredBackend)
		if !ok {
			return errors.New("offload requires the tiered backend")
		}
		moved, err := tiered.Offload(ctx, fs.Arg(0))
		logger.Info("offloaded", "assets", moved)
		return err
	}
}

func listAssets(ctx context.Context, store *xpk.AssetStore, prefix string, long bool) error {
	if !long {
		keys, err := store.List(ctx, prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	}

	var infos []xpk.AssetInfo
	if catalog, ok := store.Backend().(*xpk.SQLiteBackend); ok {
		var err error
		if infos, err = catalog.Catalog(ctx, prefix); err != nil {
			return err
		}
	} else {
		keys, err := store.List(ctx, prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			info, err := store.Stat(ctx, k)
			if err != nil {
				return err
			}
			infos = append(infos, info)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMODE\tSTORED\tRAW\tSEALED")
	for _, info := range infos {
		mode := "raw"
		if info.Packed {
			mode = info.Mode.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\n", info.Key, mode, info.Size, info.RawSize, info.Sealed)
	}
	return w.Flush()
}
