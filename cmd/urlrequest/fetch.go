// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gogama/urlrequest"
	"github.com/gogama/urlrequest/browsercontext"
	"github.com/gogama/urlrequest/neterror"
	"github.com/gogama/urlrequest/request"
	"github.com/gogama/urlrequest/sequence"
	"github.com/gogama/urlrequest/transport"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type fetchOptions struct {
	method    string
	headers   []string
	data      string
	flags     []string
	contextID string
	user      string
	quiet     bool
}

func newFetchCmd() *cobra.Command {
	var opts fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch a URL and write the response body to stdout",
		Long: `Fetch a URL and write the response body to stdout. Progress and the
final status are written to stderr.

Examples:
  urlrequest fetch https://example.com/
  urlrequest fetch -X POST -d 'a=1&b=2' https://example.com/form
  urlrequest fetch -d @photo.png -H 'X-Upload: 1' --flag ReportUploadProgress https://example.com/upload
  urlrequest fetch --flag NoDownloadData --flag StopOnRedirect https://example.com/moved`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDescriptor(args[0], &opts)
			if err != nil {
				return err
			}
			cfg, logger, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			provider, err := browsercontext.NewProvider(cfg.ProviderOptions(logger))
			if err != nil {
				return err
			}
			defer provider.Close()
			m := urlrequest.NewManager(provider,
				urlrequest.WithLogger(logger),
				urlrequest.WithLoaderOptions(cfg.LoaderOptions(logger)))
			defer m.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			progress := cmd.ErrOrStderr()
			if opts.quiet {
				progress = io.Discard
			}
			c := newFetchClient(cmd.OutOrStdout(), progress, opts.user)
			return fetch(ctx, m, d, opts.contextID, c, logger)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.method, "request", "X", "", "request method (default GET, or POST with --data)")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, `request header as "Name: value" (repeatable)`)
	f.StringVarP(&opts.data, "data", "d", "", "request body, or @file to upload a file")
	f.StringSliceVar(&opts.flags, "flag", nil, "request flag name, such as StopOnRedirect (repeatable)")
	f.StringVar(&opts.contextID, "context", "", "browser context id (default is the global context)")
	f.StringVarP(&opts.user, "user", "u", "", `credentials as "user:password" for authentication challenges`)
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

// buildDescriptor turns a URL and command-line options into a request
// descriptor.
func buildDescriptor(rawURL string, opts *fetchOptions) (*request.Descriptor, error) {
	d, err := request.New(opts.method, rawURL)
	if err != nil {
		return nil, err
	}
	for _, h := range opts.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q: expected \"Name: value\"", h)
		}
		if err = d.SetHeaderValue(strings.TrimSpace(name), strings.TrimSpace(value), false); err != nil {
			return nil, err
		}
	}
	if opts.data != "" {
		var e request.Element
		if strings.HasPrefix(opts.data, "@") {
			e = request.FileElement(opts.data[1:])
		} else {
			e = request.BytesElement([]byte(opts.data))
		}
		d.SetBody(request.NewBody(e))
	}
	var flags request.Flags
	for _, name := range opts.flags {
		f, err := request.ParseFlag(name)
		if err != nil {
			return nil, err
		}
		flags |= f
	}
	d.SetFlags(flags)
	return d, nil
}

// fetchClient writes the response body to out and progress to progress.
// It answers authentication challenges with its credentials, if any.
type fetchClient struct {
	out      io.Writer
	progress io.Writer
	username string
	password string
	hasUser  bool

	received uint64
	status   urlrequest.Status
	response *request.Response
	done     chan struct{}
}

func newFetchClient(out, progress io.Writer, user string) *fetchClient {
	c := &fetchClient{
		out:      out,
		progress: progress,
		done:     make(chan struct{}),
	}
	if user != "" {
		c.username, c.password, _ = strings.Cut(user, ":")
		c.hasUser = true
	}
	return c
}

func (c *fetchClient) OnUploadProgress(_ *urlrequest.URLRequest, current, total int64) {
	fmt.Fprintf(c.progress, "uploaded %s of %s\n", humanize.Bytes(uint64(current)), humanize.Bytes(uint64(total)))
}

func (c *fetchClient) OnDownloadProgress(_ *urlrequest.URLRequest, current, total int64) {
	if total < 0 {
		fmt.Fprintf(c.progress, "downloaded %s\n", humanize.Bytes(uint64(current)))
		return
	}
	fmt.Fprintf(c.progress, "downloaded %s of %s\n", humanize.Bytes(uint64(current)), humanize.Bytes(uint64(total)))
}

func (c *fetchClient) OnDownloadData(_ *urlrequest.URLRequest, data []byte) {
	c.received += uint64(len(data))
	_, _ = c.out.Write(data)
}

func (c *fetchClient) OnRequestComplete(r *urlrequest.URLRequest) {
	c.status = r.Status()
	c.response = r.Response()
	close(c.done)
}

func (c *fetchClient) GetAuthCredentials(isProxy bool, host string, port int, realm, scheme string, callback transport.AuthResponder) bool {
	if !c.hasUser {
		return false
	}
	fmt.Fprintf(c.progress, "authenticating to %s:%d (%s realm %q)\n", host, port, scheme, realm)
	callback(c.username, c.password, true)
	return true
}

// fetch runs d to completion on a dedicated sequence. If ctx ends first
// the request is cancelled.
func fetch(ctx context.Context, m *urlrequest.Manager, d *request.Descriptor, contextID string, c *fetchClient, logger *zap.Logger) error {
	runner := sequence.NewRunner("urlrequest-fetch")
	defer runner.Stop()

	var r *urlrequest.URLRequest
	started := make(chan bool, 1)
	runner.PostTask(func() {
		r = m.NewRequest(nil, d, c, contextID)
		started <- r.Start()
	})
	if !<-started {
		return fmt.Errorf("cannot start request for %q", d.URL())
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		logger.Info("cancelling request", zap.Error(ctx.Err()))
		runner.PostTask(func() { r.Cancel() })
		<-c.done
	}

	resp := c.response
	fmt.Fprintf(c.progress, "%s: %d %s, %s received", c.status, resp.Status(), resp.StatusText(), humanize.Bytes(c.received))
	if resp.WasCached() {
		fmt.Fprint(c.progress, " (cached)")
	}
	fmt.Fprintln(c.progress)

	if c.status != urlrequest.StatusSuccess {
		if code := resp.Error(); code != neterror.OK {
			return fmt.Errorf("request %s: %w", strings.ToLower(c.status.String()), code)
		}
		return errors.New("request " + strings.ToLower(c.status.String()))
	}
	return nil
}
