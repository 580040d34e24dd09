package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [FILTER]",
	Short:   "List the voices of the configured engine",
	Long:    paragraph(fmt.Sprintf("\n%s the voices the engine offers, marking the default. FILTER fuzzy-matches voice names such as en_US/female.", keyword("List"))),
	Example: paragraph("ttsctl voices\nttsctl voices ko --engine remote"),
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(ttsConfig)
		if err != nil {
			return err
		}
		defer destroy(client)

		ready, err := connectCallbacks(client, nil)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if err := waitReady(ctx, client, ready); err != nil {
			return err
		}

		var filter string
		if len(args) > 0 {
			filter = args[0]
		}
		return listVoices(cmd.OutOrStdout(), client, filter)
	},
}

// listVoices prints the voices of a ready client, best filter matches first.
func listVoices(w io.Writer, client *tts.Client, filter string) error {
	seq, err := client.Voices()
	if err != nil {
		return err
	}
	def, err := client.DefaultVoice()
	if err != nil {
		return err
	}

	var voices []engine.Voice
	for v := range seq {
		voices = append(voices, v)
	}
	if filter != "" {
		names := make([]string, len(voices))
		for i, v := range voices {
			names[i] = v.String()
		}
		matches := fuzzy.Find(filter, names)
		filtered := make([]engine.Voice, 0, len(matches))
		for _, m := range matches {
			filtered = append(filtered, voices[m.Index])
		}
		voices = filtered
	}

	info := client.Engine()
	fmt.Fprintf(w, "%s %s\n\n", keyword(info.Name), faint(info.ID))
	if len(voices) == 0 {
		fmt.Fprintln(w, "  No voices match", filter)
		return nil
	}
	for _, v := range voices {
		marker := " "
		if v == def {
			marker = keyword("*")
		}
		fmt.Fprintf(w, "%s %-8s %s\n", marker, v.Language, v.Type)
	}

	lo, normal, hi, err := client.SpeedRange()
	if err != nil {
		return err
	}
	maxText, err := client.MaxTextSize()
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, faint(fmt.Sprintf("speed %d-%d (normal %d), up to %s of text per utterance",
		lo, hi, normal, humanize.Bytes(uint64(maxText))))) //nolint:gosec
	return nil
}
