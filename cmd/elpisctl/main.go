package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/elpisgate/internal/common"
	"example.com/elpisgate/internal/elpis"
	"example.com/elpisgate/internal/pcapx"
	"example.com/elpisgate/internal/report"
	"example.com/elpisgate/internal/schema"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "decode":
		decodeCmd(os.Args[2:])
	case "schema":
		schemaCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`elpisctl %s (built %s) <command> [options]

Commands:
  decode  --in <file|capture.pcap> --schema <messages.json|schema.dbc> [--port <udp-port>] [--out <messages.ndjson>] [--report <report.json>] [--pdf <report.pdf>] [--qr <digest.png>] [--lang en|tr] [--metrics] [--progress]
  schema  <inspect|convert> [...]
  report  --in <report.json> [--pdf <report.pdf>] [--qr <digest.png>] [--lang en|tr]
`, version, buildDate)
}

func decodeCmd(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "", "input buffer file or pcap capture")
	schemaPath := fs.String("schema", "messages.json", "schema document (.json or .dbc)")
	port := fs.Int("port", pcapx.DefaultPort, "udp port carrying datagrams in captures")
	outPath := fs.String("out", "", "write decoded messages as NDJSON")
	reportPath := fs.String("report", "", "write decode report JSON")
	pdfPath := fs.String("pdf", "", "write decode report PDF")
	qrPath := fs.String("qr", "", "write report digest QR PNG")
	langFlag := fs.String("lang", "en", "report language")
	metricsFlag := fs.Bool("metrics", false, "print decode throughput metrics")
	progressFlag := fs.Bool("progress", false, "display decode progress updates")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	lang, err := report.ParseLanguage(*langFlag)
	if err != nil {
		fmt.Println("lang:", err)
		os.Exit(1)
	}
	reg, err := schema.EnsureLoaded(*schemaPath)
	if err != nil {
		fmt.Println("schema:", err)
		os.Exit(1)
	}

	bufs, err := collectBuffers(*in, *port)
	if err != nil {
		fmt.Println("input:", err)
		os.Exit(1)
	}

	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		total := int64(0)
		for _, b := range bufs {
			total += int64(len(b))
		}
		metrics.SetTotalBytes(total)
		metrics.Start()
	}
	var stopProgress func()
	if metrics != nil && *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}

	var merged elpis.DecodeResult
	structuralFaults := 0
	for i, buf := range bufs {
		res, err := decodeOne(buf, reg, metrics)
		merged.Messages = append(merged.Messages, res.Messages...)
		merged.Diagnostics = append(merged.Diagnostics, res.Diagnostics...)
		if err != nil {
			structuralFaults++
			fmt.Fprintf(os.Stderr, "buffer %d stopped: %v\n", i, err)
		}
	}
	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}

	if *outPath != "" {
		if err := writeMessagesNDJSON(*outPath, merged.Messages); err != nil {
			fmt.Println("write messages:", err)
			os.Exit(1)
		}
	}
	rep := report.Build(*in, reg, merged)
	if *reportPath != "" {
		if err := report.SaveJSON(rep, *reportPath); err != nil {
			fmt.Println("write report:", err)
			os.Exit(1)
		}
	}
	if *pdfPath != "" {
		if err := report.SavePDF(rep, *pdfPath, lang); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
	}
	if *qrPath != "" {
		if err := writeDigestQR(rep, *qrPath); err != nil {
			fmt.Println("write qr:", err)
			os.Exit(1)
		}
	}

	if line := rep.InfoLine; line != "" {
		fmt.Println(line)
	}
	fmt.Printf("PASS=%v, messages=%d, known=%d, unknown=%d, warnings=%d, errors=%d, faults=%d\n",
		rep.Summary.Pass && structuralFaults == 0,
		rep.Summary.Messages, rep.Summary.Known, rep.Summary.Unknown,
		rep.Summary.Warnings, rep.Summary.Errors, structuralFaults)
	if metrics != nil && *metricsFlag {
		snap := metrics.Snapshot()
		throughputBps := snap.ThroughputBytesPerSecond()
		mbPerSec := throughputBps / 1_000_000
		fmt.Printf("Metrics: duration=%s messages=%d unknown=%d signal-errors=%d processed=%s throughput=%.2f MB/s\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Messages,
			snap.Unknown,
			snap.SignalErrors,
			common.FormatBytes(snap.Bytes),
			mbPerSec,
		)
	}
}

func decodeOne(buf []byte, reg *schema.Registry, metrics *common.Metrics) (elpis.DecodeResult, error) {
	p := elpis.NewParser(buf, reg)
	if metrics != nil {
		p.SetMetrics(metrics)
	}
	var res elpis.DecodeResult
	for {
		msg, err := p.Next()
		if err != nil {
			res.Diagnostics = p.Diagnostics()
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			return res, err
		}
		res.Messages = append(res.Messages, msg)
	}
}

func collectBuffers(path string, port int) ([][]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pcap" || ext == ".cap" {
		grams, err := pcapx.ExtractFile(path, port)
		if err != nil {
			return nil, err
		}
		bufs := make([][]byte, len(grams))
		for i, g := range grams {
			bufs[i] = g.Payload
		}
		return bufs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

func writeMessagesNDJSON(path string, msgs []elpis.SubMessage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

func writeDigestQR(rep report.DecodeReport, path string) error {
	digest, err := rep.Digest()
	if err != nil {
		return err
	}
	png, err := report.DigestToQR(digest, 256)
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0644)
}

func schemaCmd(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: elpisctl schema <inspect|convert> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "inspect":
		schemaInspectCmd(args[1:])
	case "convert":
		schemaConvertCmd(args[1:])
	default:
		fmt.Println("usage: elpisctl schema <inspect|convert> [options]")
		os.Exit(1)
	}
}

func schemaInspectCmd(args []string) {
	fs := flag.NewFlagSet("schema inspect", flag.ExitOnError)
	schemaPath := fs.String("schema", "messages.json", "schema document (.json or .dbc)")
	idFlag := fs.String("id", "", "dump one message definition as JSON")
	fs.Parse(args)

	reg, err := schema.EnsureLoaded(*schemaPath)
	if err != nil {
		fmt.Println("schema:", err)
		os.Exit(1)
	}

	if *idFlag != "" {
		id, err := strconv.ParseInt(*idFlag, 0, 32)
		if err != nil {
			fmt.Println("id:", err)
			os.Exit(1)
		}
		def, ok := reg.Lookup(int32(id))
		if !ok {
			fmt.Printf("no message with id %s\n", *idFlag)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(def); err != nil {
			fmt.Println("encode:", err)
			os.Exit(1)
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLENGTH\tSIGNALS")
	for _, id := range reg.IDs() {
		def, _ := reg.Lookup(id)
		fmt.Fprintf(w, "0x%X\t%s\t%d\t%d\n", def.ID, def.Name, def.Length, len(def.Signals))
	}
	w.Flush()
	fmt.Printf("%d message definitions\n", reg.Count())
}

func schemaConvertCmd(args []string) {
	fs := flag.NewFlagSet("schema convert", flag.ExitOnError)
	in := fs.String("in", "", "input schema (.dbc or .json)")
	out := fs.String("out", "messages.json", "output messages.json")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	reg, err := schema.EnsureLoaded(*in)
	if err != nil {
		fmt.Println("schema:", err)
		os.Exit(1)
	}
	if err := schema.SaveJSON(reg, *out); err != nil {
		fmt.Println("write:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d message definitions to %s\n", reg.Count(), *out)
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "decode report JSON")
	pdfPath := fs.String("pdf", "", "write decode report PDF")
	qrPath := fs.String("qr", "", "write report digest QR PNG")
	langFlag := fs.String("lang", "en", "report language")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	lang, err := report.ParseLanguage(*langFlag)
	if err != nil {
		fmt.Println("lang:", err)
		os.Exit(1)
	}
	rep, err := report.LoadJSON(*in)
	if err != nil {
		fmt.Println("read report:", err)
		os.Exit(1)
	}
	if *pdfPath != "" {
		if err := report.SavePDF(rep, *pdfPath, lang); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
	}
	if *qrPath != "" {
		if err := writeDigestQR(rep, *qrPath); err != nil {
			fmt.Println("write qr:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("PASS=%v, messages=%d, warnings=%d, errors=%d\n",
		rep.Summary.Pass, rep.Summary.Messages, rep.Summary.Warnings, rep.Summary.Errors)
}
