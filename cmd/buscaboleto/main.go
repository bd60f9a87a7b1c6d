// BuscaBoleto retrieves invoices and service tax notes for the billing
// team. Documents live on the company SFTP server in separate invoice
// and tax note trees; service tax notes also come from the municipal
// fiscal API using the company client certificate.
//
// Sub-commands:
//
//	buscaboleto search <number> [flags]    Find documents by number
//	buscaboleto period [flags]             Find documents by modification date
//	buscaboleto get <remote-path> [flags]  Download a single document
//	buscaboleto download <number> [flags]  Download every match into a zip
//	buscaboleto nfse <number> [flags]      Fetch a service tax note
//	buscaboleto cert [flags]               Show the fiscal API certificate
//
// Configuration comes from the environment or a .env file; see -env.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarceloCBif/BuscaBoleto/internal/config"
	"github.com/MarceloCBif/BuscaBoleto/internal/document"
	"github.com/MarceloCBif/BuscaBoleto/internal/logging"
	"github.com/MarceloCBif/BuscaBoleto/internal/metrics"
	"github.com/MarceloCBif/BuscaBoleto/internal/netcheck"
	"github.com/MarceloCBif/BuscaBoleto/internal/nfse"
	"github.com/MarceloCBif/BuscaBoleto/internal/remote"
	"github.com/MarceloCBif/BuscaBoleto/internal/search"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "search":
		cmdSearch(os.Args[2:])
	case "period":
		cmdPeriod(os.Args[2:])
	case "get":
		cmdGet(os.Args[2:])
	case "download":
		cmdDownload(os.Args[2:])
	case "nfse":
		cmdNFSe(os.Args[2:])
	case "cert":
		cmdCert(os.Args[2:])
	case "help", "-h", "-help", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `BuscaBoleto - invoice and service tax note retrieval

Usage:
  buscaboleto <command> [flags] [arguments]

Commands:
  search <number>      Find documents by number
  period               Find documents modified inside a date range
  get <remote-path>    Download a single document
  download <number>    Download every match and bundle into a zip
  nfse <number>        Fetch a service tax note from the fiscal API
  cert                 Show the fiscal API client certificate

Run "buscaboleto <command> -h" for the flags of each command.
`)
}

// setup loads configuration, wires logging and, when configured,
// starts the metrics listener.
func setup(envFile string) *config.Config {
	if envFile != "" {
		os.Setenv("BUSCABOLETO_ENV", envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		panic("logging init error: " + err.Error())
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}
	return cfg
}

// newEngine validates the server settings, enforces the network gate
// and opens the session. Exits with a message when any step fails.
func newEngine(cfg *config.Config) (*search.Engine, *remote.Client) {
	if err := cfg.ValidateSFTP(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !netcheck.Allowed(cfg.AllowedIPPrefixes) {
		fmt.Fprintf(os.Stderr, "Error: this tool only runs on allowed networks (%sxxx)\n",
			strings.Join(cfg.AllowedIPPrefixes, ", "))
		os.Exit(1)
	}

	client := remote.New(remote.Config{
		Host:        cfg.SFTPHost,
		Port:        cfg.SFTPPort,
		User:        cfg.SFTPUser,
		Password:    cfg.SFTPPassword,
		KeyPath:     cfg.SFTPKeyPath,
		BaseDir:     cfg.BoletoDir,
		Timeout:     cfg.Timeout,
		DownloadDir: cfg.DownloadDir,
		Extensions:  cfg.AllowedExtensions,
	})
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	eng := search.New(client, search.Config{
		BoletoDir:   cfg.BoletoDir,
		NFDir:       cfg.NFDir,
		DownloadDir: cfg.DownloadDir,
	})
	eng.OnProgress = func(msg string) { fmt.Println(msg) }
	return eng, client
}

func newNFSeClient(cfg *config.Config) *nfse.Client {
	if err := cfg.ValidateNFSe(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return nfse.New(nfse.Config{
		EndpointDPS:  cfg.NFSeEndpointDPS,
		EndpointKey:  cfg.NFSeEndpointKey,
		EndpointPDF:  cfg.NFSeEndpointPDF,
		IDPrefix:     cfg.NFSeIDPrefix,
		CertPath:     cfg.NFSeCertPath,
		CertPassword: cfg.NFSeCertPassword,
		Timeout:      cfg.Timeout,
		DownloadDir:  cfg.DownloadDir,
	})
}

func cmdSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	envFile := fs.String("env", "", "Environment file to load")
	literal := fs.Bool("literal", false, "Match the exact document number instead of any occurrence")
	flat := fs.Bool("flat", false, "Search only the top level of each directory")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: buscaboleto search [-literal] [-flat] <number>\n")
		os.Exit(1)
	}

	cfg := setup(*envFile)
	defer logging.Sync()

	eng, client := newEngine(cfg)
	defer client.Disconnect()

	groups := eng.SearchNumber(fs.Arg(0), search.Options{Literal: *literal, Recursive: !*flat})
	printGroups(groups)
}

func cmdPeriod(args []string) {
	fs := flag.NewFlagSet("period", flag.ExitOnError)
	envFile := fs.String("env", "", "Environment file to load")
	fromStr := fs.String("from", "", "Start date, dd/mm/yyyy")
	toStr := fs.String("to", "", "End date, dd/mm/yyyy")
	quick := fs.String("range", "", "Convenience range: today, last-week or last-month")
	fs.Parse(args)

	from, to := resolvePeriod(*quick, *fromStr, *toStr)

	cfg := setup(*envFile)
	defer logging.Sync()

	eng, client := newEngine(cfg)
	defer client.Disconnect()

	printGroups(eng.SearchPeriod(from, to))
}

func resolvePeriod(quick, fromStr, toStr string) (time.Time, time.Time) {
	if quick == "" {
		return parseDateRange(fromStr, toStr)
	}
	if fromStr != "" || toStr != "" {
		fmt.Fprintf(os.Stderr, "Error: -range cannot be combined with -from/-to\n")
		os.Exit(1)
	}
	var days int
	switch quick {
	case "today":
		days = 0
	case "last-week":
		days = 7
	case "last-month":
		days = 30
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown range %q, expected today, last-week or last-month\n", quick)
		os.Exit(1)
	}
	now := time.Now()
	return now.AddDate(0, 0, -days), now
}

func parseDateRange(fromStr, toStr string) (time.Time, time.Time) {
	if fromStr == "" || toStr == "" {
		fmt.Fprintf(os.Stderr, "Error: -from and -to are required (dd/mm/yyyy), or use -range\n")
		os.Exit(1)
	}
	from, err := time.ParseInLocation("02/01/2006", fromStr, time.Local)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid start date %q, expected dd/mm/yyyy\n", fromStr)
		os.Exit(1)
	}
	to, err := time.ParseInLocation("02/01/2006", toStr, time.Local)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid end date %q, expected dd/mm/yyyy\n", toStr)
		os.Exit(1)
	}
	if to.Before(from) {
		fmt.Fprintf(os.Stderr, "Error: end date must not be before the start date\n")
		os.Exit(1)
	}
	return from, to
}

func cmdGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	envFile := fs.String("env", "", "Environment file to load")
	name := fs.String("name", "", "Local file name (default: remote base name)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: buscaboleto get [-name file] <remote-path>\n")
		os.Exit(1)
	}

	cfg := setup(*envFile)
	defer logging.Sync()

	eng, client := newEngine(cfg)
	defer client.Disconnect()

	local, err := eng.Download(fs.Arg(0), *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved: %s\n", local)
}

func cmdDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	envFile := fs.String("env", "", "Environment file to load")
	literal := fs.Bool("literal", false, "Match the exact document number instead of any occurrence")
	flat := fs.Bool("flat", false, "Search only the top level of each directory")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: buscaboleto download [-literal] [-flat] <number>\n")
		os.Exit(1)
	}

	cfg := setup(*envFile)
	defer logging.Sync()

	eng, client := newEngine(cfg)
	defer client.Disconnect()

	groups := eng.SearchNumber(fs.Arg(0), search.Options{Literal: *literal, Recursive: !*flat})
	if len(groups) == 0 {
		fmt.Println("No documents found.")
		return
	}

	var selection []document.Hit
	for _, g := range groups {
		selection = append(selection, g.Hits...)
	}

	res, err := eng.DownloadAll(selection)
	fmt.Printf("Downloaded %d of %d document(s)\n", res.Succeeded, res.Succeeded+res.Failed)
	if len(res.Errors) > 0 {
		shown := res.Errors
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, e := range shown {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		if rest := len(res.Errors) - len(shown); rest > 0 {
			fmt.Fprintf(os.Stderr, "  ... and %d more\n", rest)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Archive: %s\n", res.Archive)
}

func cmdNFSe(args []string) {
	fs := flag.NewFlagSet("nfse", flag.ExitOnError)
	envFile := fs.String("env", "", "Environment file to load")
	withPDF := fs.Bool("pdf", false, "Also download the rendered PDF")
	saveXML := fs.Bool("save-xml", true, "Write the XML to the download directory (disable to print it)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: buscaboleto nfse [-pdf] [-save-xml=false] <number>\n")
		os.Exit(1)
	}

	cfg := setup(*envFile)
	defer logging.Sync()

	client := newNFSeClient(cfg)
	ctx := context.Background()

	var (
		dest string
		doc  string
		info nfse.Info
		err  error
	)
	if *saveXML {
		dest, info, err = client.LookupAndSave(ctx, fs.Arg(0))
	} else {
		doc, info, err = client.Lookup(ctx, fs.Arg(0))
	}
	if err != nil {
		if info.RequestID != "" {
			fmt.Fprintf(os.Stderr, "Request ID: %s\n", info.RequestID)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *saveXML {
		fmt.Printf("XML saved: %s\n", dest)
	} else {
		fmt.Println(doc)
	}

	if *withPDF {
		pdfPath, err := client.PDF(ctx, info.AccessKey, info.Number)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: PDF not available: %v\n", err)
			return
		}
		fmt.Printf("PDF saved: %s\n", pdfPath)
	}
}

func cmdCert(args []string) {
	fs := flag.NewFlagSet("cert", flag.ExitOnError)
	envFile := fs.String("env", "", "Environment file to load")
	fs.Parse(args)

	cfg := setup(*envFile)
	defer logging.Sync()

	client := newNFSeClient(cfg)
	info, err := client.VerifyCertificate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Subject:     %s\n", info.Subject)
	fmt.Printf("Valid until: %s\n", info.NotAfter.Format("02/01/2006 15:04"))
	if time.Now().After(info.NotAfter) {
		fmt.Fprintln(os.Stderr, "Warning: certificate has expired")
	}
}

func printGroups(groups []document.Group) {
	if len(groups) == 0 {
		fmt.Println("No documents found.")
		return
	}

	total := 0
	for _, g := range groups {
		total += len(g.Hits)
	}
	fmt.Printf("%d document(s) in %d group(s)\n\n", total, len(groups))

	fmt.Printf("%-6s  %-9s  %-16s  %s\n", "TYPE", "NUMBER", "MODIFIED", "NAME")
	for i, g := range groups {
		if i > 0 {
			fmt.Println(strings.Repeat("─", 64))
		}
		for _, h := range g.Hits {
			fmt.Printf("%-6s  %-9s  %-16s  %s\n",
				h.Type,
				document.Number(h.Name),
				h.ModTime.Format("02/01/2006 15:04"),
				h.Name)
		}
	}
}
