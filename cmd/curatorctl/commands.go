package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/catalog"
	"github.com/Harvey-AU/catalog-backoffice/internal/curation"
	"github.com/Harvey-AU/catalog-backoffice/internal/filter"
	"github.com/Harvey-AU/catalog-backoffice/internal/jobs"
	"github.com/Harvey-AU/catalog-backoffice/internal/taxonomy"
	"github.com/urfave/cli/v2"
)

// filterFlags map one to one onto listing query parameters
var filterFlags = []string{
	"search", "source", "brand", "category", "status", "date-from", "date-to",
	"min-price", "max-price", "page", "page-size", "sort-by", "sort-dir",
}

func listingFlags() []cli.Flag {
	flags := make([]cli.Flag, 0, len(filterFlags))
	for _, name := range filterFlags {
		flags = append(flags, &cli.StringFlag{Name: name})
	}
	return flags
}

// criteriaFrom validates the listing flags locally so a bad value never
// costs a round trip.
func criteriaFrom(c *cli.Context) (filter.Criteria, error) {
	q := url.Values{}
	for _, name := range filterFlags {
		if c.IsSet(name) {
			q.Set(strings.ReplaceAll(name, "-", "_"), c.String(name))
		}
	}
	return filter.ParseQuery(q)
}

func waitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "wait", Usage: "poll the job until it finishes"},
		&cli.DurationFlag{Name: "poll-interval", Value: jobs.DefaultPollInterval},
		&cli.DurationFlag{Name: "poll-timeout", Value: jobs.DefaultPollTimeout},
	}
}

func productsCommand() *cli.Command {
	return &cli.Command{
		Name:  "products",
		Usage: "list and curate scraped products",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list products matching the filters",
				Flags:  listingFlags(),
				Action: listProducts,
			},
			{
				Name:      "curate",
				Usage:     "send products to AI curation",
				ArgsUsage: "[product-id...]",
				Flags: append(append(listingFlags(),
					&cli.BoolFlag{Name: "page-selection", Usage: "select every eligible product on the filtered page"},
					&cli.StringFlag{Name: "notes"},
				), waitFlags()...),
				Action: curateProducts,
			},
			{
				Name:      "bulk",
				Usage:     "apply one action to many products",
				ArgsUsage: "product-id...",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "action", Required: true, Usage: "approve, reject, change_brand, change_category, send_to_ai or delete"},
					&cli.StringFlag{Name: "brand"},
					&cli.StringFlag{Name: "category"},
					&cli.StringFlag{Name: "notes"},
					&cli.BoolFlag{Name: "yes", Usage: "confirm a bulk delete"},
				}, waitFlags()...),
				Action: bulkAction,
			},
			{
				Name:      "set-status",
				Usage:     "move one product to a status",
				ArgsUsage: "product-id status",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "brand"},
					&cli.StringFlag{Name: "category"},
					&cli.StringFlag{Name: "notes"},
				},
				Action: setStatus,
			},
		},
	}
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "inspect curation jobs",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				ArgsUsage: "job-id",
				Action: func(c *cli.Context) error {
					client, err := clientFrom(c)
					if err != nil {
						return err
					}
					job, err := client.GetJob(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					return printJob(c, job)
				},
			},
			{
				Name:      "wait",
				Usage:     "wait for one or more jobs to finish",
				ArgsUsage: "job-id...",
				Flags:     waitFlags(),
				Action:    waitJobs,
			},
			{
				Name:      "cancel",
				Usage:     "cancel a job that has not started",
				ArgsUsage: "job-id",
				Action: func(c *cli.Context) error {
					client, err := clientFrom(c)
					if err != nil {
						return err
					}
					if err := client.CancelJob(c.Context, c.Args().First()); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Cancelled job %s\n", c.Args().First())
					return nil
				},
			},
		},
	}
}

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "browse the category tree",
		Subcommands: []*cli.Command{
			{
				Name:  "tree",
				Usage: "print the category tree",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search"},
					&cli.BoolFlag{Name: "expand-all"},
					&cli.Int64SliceFlag{Name: "expand", Usage: "expand these category ids"},
				},
				Action: printTree,
			},
			{
				Name:      "delete",
				ArgsUsage: "category-id",
				Action: func(c *cli.Context) error {
					id, err := strconv.ParseInt(c.Args().First(), 10, 64)
					if err != nil || id < 1 {
						return fmt.Errorf("invalid category id %q", c.Args().First())
					}
					client, err := clientFrom(c)
					if err != nil {
						return err
					}
					if err := client.DeleteCategory(c.Context, id); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Deleted category %d\n", id)
					return nil
				},
			},
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "show product counts per source and status",
		Action: func(c *cli.Context) error {
			client, err := clientFrom(c)
			if err != nil {
				return err
			}
			sources, err := client.SourceStats(c.Context)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, sources)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			header := []string{"SOURCE"}
			for _, s := range curation.Statuses {
				header = append(header, strings.ToUpper(string(s)))
			}
			fmt.Fprintln(tw, strings.Join(append(header, "TOTAL"), "\t"))
			for _, src := range sources {
				row := []string{src.Source}
				for _, s := range curation.Statuses {
					row = append(row, strconv.Itoa(src.Counts[string(s)]))
				}
				fmt.Fprintln(tw, strings.Join(append(row, strconv.Itoa(src.Total)), "\t"))
			}
			return tw.Flush()
		},
	}
}

func listProducts(c *cli.Context) error {
	criteria, err := criteriaFrom(c)
	if err != nil {
		return err
	}
	client, err := clientFrom(c)
	if err != nil {
		return err
	}
	page, err := client.ListProducts(c.Context, criteria)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, page)
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBRAND\tPRICE\tSTATUS\tACTIONS")
	for _, p := range page.Products {
		actions := make([]string, len(p.AvailableActions))
		for i, a := range p.AvailableActions {
			actions[i] = string(a)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\n",
			p.ID, p.Name, p.ResolvedBrand(), p.Price.StringFixed(2), p.Currency, p.Status, strings.Join(actions, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Page %d of %d (%d products)\n", page.Page, page.TotalPages, page.TotalCount)
	return nil
}

// curateProducts sends the given ids, or every product on the filtered page
// that can still be sent, to the AI pipeline.
func curateProducts(c *cli.Context) error {
	client, err := clientFrom(c)
	if err != nil {
		return err
	}

	selection := curation.NewSelection()
	selection.Select(c.Args().Slice()...)

	if c.Bool("page-selection") {
		criteria, err := criteriaFrom(c)
		if err != nil {
			return err
		}
		page, err := client.ListProducts(c.Context, criteria)
		if err != nil {
			return err
		}
		eligible := make([]string, 0, len(page.Products))
		for _, p := range page.Products {
			if slices.Contains(p.AvailableActions, curation.ActionSendToAI) {
				eligible = append(eligible, p.ID)
			}
		}
		selection.SelectAll(eligible)
	}

	if selection.Len() == 0 {
		return apperr.Validation("product_ids", "no products selected")
	}

	result, err := client.Curate(c.Context, selection.IDs(), optionalString(c, "notes"))
	if err != nil {
		return err
	}
	return reportResult(c, client, result)
}

func bulkAction(c *cli.Context) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return apperr.Validation("product_ids", "at least one product id is required")
	}
	client, err := clientFrom(c)
	if err != nil {
		return err
	}

	req := catalog.BulkRequest{
		Action:        curation.Action(c.String("action")),
		ProductIDs:    ids,
		Brand:         c.String("brand"),
		Category:      c.String("category"),
		CurationNotes: optionalString(c, "notes"),
	}

	if req.Action == curation.ActionDelete {
		if !c.Bool("yes") {
			return fmt.Errorf("%w: deleting %d products needs --yes", apperr.ErrConfirmationRequired, len(ids))
		}
		req.ConfirmationToken, err = client.RequestDeleteConfirmation(c.Context, ids)
		if err != nil {
			return err
		}
	}

	result, err := client.Bulk(c.Context, req)
	if err != nil {
		return err
	}
	return reportResult(c, client, result)
}

func setStatus(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return apperr.Validation("args", "expected a product id and a status")
	}
	status := curation.Status(strings.ToLower(c.Args().Get(1)))
	if !status.Valid() {
		return apperr.Validation("status", fmt.Sprintf("unknown status %q", c.Args().Get(1)))
	}
	client, err := clientFrom(c)
	if err != nil {
		return err
	}

	err = client.SetCurationStatus(c.Context, c.Args().First(), catalog.StatusUpdate{
		Status:   status,
		Brand:    c.String("brand"),
		Category: c.String("category"),
		Notes:    optionalString(c, "notes"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Product %s is now %s\n", c.Args().First(), status)
	return nil
}

func reportResult(c *cli.Context, client *catalog.Client, result *catalog.ActionResult) error {
	if !result.Async() {
		if c.Bool("json") {
			return writeJSON(c.App.Writer, result)
		}
		fmt.Fprintf(c.App.Writer, "Done: %d succeeded, %d failed\n", deref(result.Successful), deref(result.Failed))
		return nil
	}

	fmt.Fprintf(c.App.Writer, "Queued job %s", result.JobID)
	if result.Skipped > 0 {
		fmt.Fprintf(c.App.Writer, " (%d skipped)", result.Skipped)
	}
	fmt.Fprintln(c.App.Writer)

	if !c.Bool("wait") {
		return nil
	}
	return watchJob(c, client, result.JobID)
}

// watchJob prints each status change until the job settles
func watchJob(c *cli.Context, client *catalog.Client, jobID string) error {
	poller := newPoller(c, client)
	watch := poller.Start(c.Context, jobID)
	defer watch.Stop()

	var last jobs.JobStatus
	for job := range watch.Updates() {
		if job.Status != last {
			fmt.Fprintf(c.App.Writer, "%s  %s\n", time.Now().Format(time.TimeOnly), job.Status)
			last = job.Status
		}
	}

	job, err := watch.Result()
	if err != nil {
		return err
	}
	return printJob(c, job)
}

func waitJobs(c *cli.Context) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return apperr.Validation("job_ids", "at least one job id is required")
	}
	client, err := clientFrom(c)
	if err != nil {
		return err
	}
	if len(ids) == 1 {
		return watchJob(c, client, ids[0])
	}

	results := newPoller(c, client).PollAll(c.Context, ids, 4)

	var errs []error
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tPRODUCTS\tERROR")
	for _, r := range results {
		status, products, msg := "-", 0, ""
		if r.Job != nil {
			status = string(r.Job.Status)
			products = len(r.Job.AffectedProductIDs)
		}
		if r.Err != nil {
			msg = r.Err.Error()
			errs = append(errs, r.Err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.JobID, status, products, msg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func newPoller(c *cli.Context, client *catalog.Client) *jobs.Poller {
	return jobs.NewPoller(client,
		jobs.WithInterval(c.Duration("poll-interval")),
		jobs.WithTimeout(c.Duration("poll-timeout")),
	)
}

func printJob(c *cli.Context, job *jobs.CurationJob) error {
	if c.Bool("json") {
		return writeJSON(c.App.Writer, job)
	}
	fmt.Fprintf(c.App.Writer, "Job %s: %s, %d products\n", job.ID, job.Status, len(job.AffectedProductIDs))
	if job.ErrorMessage != "" {
		fmt.Fprintf(c.App.Writer, "Error: %s\n", job.ErrorMessage)
	}
	return nil
}

func printTree(c *cli.Context) error {
	client, err := clientFrom(c)
	if err != nil {
		return err
	}
	tree, err := client.CategoryTree(c.Context, c.String("search"), c.Bool("expand-all"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, tree)
	}

	expanded := taxonomy.NewExpandedSet()
	for _, id := range tree.ExpandedIDs {
		expanded.Expand(id)
	}
	for _, id := range c.Int64Slice("expand") {
		expanded.Expand(id)
	}
	expanded.Retain(tree.Tree)

	for _, row := range taxonomy.Visible(tree.Tree, expanded) {
		marker := "  "
		switch {
		case row.Node.HasChildren() && row.Expanded:
			marker = "- "
		case row.Node.HasChildren():
			marker = "+ "
		}
		suffix := ""
		if !row.Node.EffectiveActive {
			suffix = " (inactive)"
		}
		fmt.Fprintf(c.App.Writer, "%s%s%s [%d]%s\n", strings.Repeat("  ", row.Depth), marker, row.Node.Name, row.Node.ID, suffix)
	}
	fmt.Fprintf(c.App.Writer, "%d categories\n", tree.Total)
	return nil
}

func optionalString(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	v := c.String(name)
	return &v
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
