package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ajayykmr/persona-dispatch/internal/api"
	"github.com/ajayykmr/persona-dispatch/internal/batch"
	"github.com/ajayykmr/persona-dispatch/internal/message"
	"github.com/ajayykmr/persona-dispatch/internal/models"
)

func runPreview(w io.Writer, req *batch.Request, format message.Format) error {
	b := req.Batch()
	previews := make([]api.Preview, len(b.Recipients))
	for i, recipient := range b.Recipients {
		previews[i] = api.Preview{
			ContactID: recipient.ID,
			Body:      format.Build(b.Persona, recipient, b.Template),
		}
	}

	if outputFmt == "json" {
		return writeJSON(w, api.PreviewResponse{Previews: previews})
	}
	for i, p := range previews {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "--- %s (%s)\n%s\n", p.ContactID, b.Recipients[i].Phone, p.Body)
	}
	return nil
}

func printResults(w io.Writer, resp *api.SendResponse) error {
	if outputFmt == "json" {
		return writeJSON(w, resp)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTACT\tSTATUS\tDETAIL")
	for _, r := range resp.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.RecipientID, r.Status, r.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sent, failed := models.CountOutcomes(resp.Results)
	fmt.Fprintf(w, "\nBatch %s: %d sent, %d failed\n", resp.BatchID, sent, failed)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fieldList(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name, tags := range fields {
		names = append(names, fmt.Sprintf("%s=%s", name, strings.Join(tags, "|")))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
