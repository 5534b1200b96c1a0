package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/deepresearch/internal/codec"
	"github.com/danielpatrickdp/deepresearch/internal/corpus"
	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/store"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the local document corpus",
}

var corpusAddFlags struct {
	title string
	url   string
}

var corpusAddCmd = &cobra.Command{
	Use:   "add [file...]",
	Short: "Add documents from files, or one document from stdin",
	RunE:  runCorpusAdd,
}

var corpusListFlags struct {
	markdown bool
}

var corpusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	RunE:  runCorpusList,
}

var corpusServeFlags struct {
	listen string
}

var corpusServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the corpus as a gRPC EvidenceService",
	RunE:  runCorpusServe,
}

func init() {
	f := corpusAddCmd.Flags()
	f.StringVar(&corpusAddFlags.title, "title", "", "Document title (default: first line)")
	f.StringVar(&corpusAddFlags.url, "url", "", "Canonical URL cited for the document")

	corpusListCmd.Flags().BoolVar(&corpusListFlags.markdown, "markdown", false, "Render as a markdown table")
	corpusServeCmd.Flags().StringVar(&corpusServeFlags.listen, "listen", "", "Listen address (overrides grpc.listen)")

	corpusCmd.AddCommand(corpusAddCmd)
	corpusCmd.AddCommand(corpusListCmd)
	corpusCmd.AddCommand(corpusServeCmd)
}

func runCorpusAdd(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if len(args) == 0 {
		body, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return addDocument(cmd, st, corpusAddFlags.title, string(body))
	}
	if len(args) > 1 && (corpusAddFlags.title != "" || corpusAddFlags.url != "") {
		return errors.New("--title and --url apply to a single document")
	}
	for _, path := range args {
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		title := corpusAddFlags.title
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		if err := addDocument(cmd, st, title, string(body)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func addDocument(cmd *cobra.Command, st *store.Store, title, body string) error {
	doc, err := st.AddDocument(store.Document{Title: title, URL: corpusAddFlags.url, Body: body})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s  %q  (%d keywords)\n", doc.DocID, doc.Title, len(doc.Keywords))
	return nil
}

func runCorpusList(cmd *cobra.Command, _ []string) error {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	docs, err := st.Documents(0)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(out, "Corpus is empty.")
		return nil
	}
	t := newTable(corpusListFlags.markdown, "ID", "Title", "URL", "Keywords")
	for _, d := range docs {
		t.row(d.DocID, d.Title, d.URL, len(d.Keywords))
	}
	t.alignRight(4)
	fmt.Fprintln(out, t.String())
	return nil
}

func runCorpusServe(cmd *cobra.Command, _ []string) error {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	addr := cfg.GRPC.Listen
	if corpusServeFlags.listen != "" {
		addr = corpusServeFlags.listen
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	codec.RegisterEvidenceServer(srv, corpus.NewSource(st, corpus.Config{}))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logging.New("corpus").Info("serving EvidenceService", "addr", lis.Addr().String(), "db", cfg.Store.Path)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
