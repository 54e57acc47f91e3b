package main

import (
	"fmt"
	"strings"

	"farm-advisor-go/internal/knowledge"
	"farm-advisor-go/internal/matcher"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/safety"
	"farm-advisor-go/internal/service"

	"github.com/spf13/cobra"
)

type askOptions struct {
	kbPath     string
	crop       string
	region     string
	lang       string
	extraTerms []string
	explain    bool
}

func newAskCmd() *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question the way the chat endpoint would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.kbPath, "kb", "./data/knowledge_base.json", "knowledge base file")
	cmd.Flags().StringVar(&opts.crop, "crop", "", "farmer's primary crop")
	cmd.Flags().StringVar(&opts.region, "region", "", "farmer's region")
	cmd.Flags().StringVar(&opts.lang, "lang", model.DefaultLanguage, "preferred language")
	cmd.Flags().StringSliceVar(&opts.extraTerms, "block", nil, "additional blocked terms")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "print the matched entry and its score")
	return cmd
}

func runAsk(cmd *cobra.Command, opts *askOptions, question string) error {
	store := knowledge.NewStore(opts.kbPath)
	if store.Snapshot().Len() == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s has no usable entries\n", opts.kbPath)
	}
	m := matcher.New(store)
	chat := service.NewChatService(m, safety.NewFilter(opts.extraTerms...), nil)

	profile := model.UserProfile{PrimaryCrop: opts.crop, Region: opts.region, PreferredLanguage: opts.lang}
	result := chat.HandleChat(cmd.Context(), profile, question, "")

	out := cmd.OutOrStdout()
	if opts.explain && result.Kind == service.KindText {
		if match, ok := m.Best(profile, question); ok {
			fmt.Fprintf(out, "[entry %d, score %d, affinity %d]\n", match.Index, match.Score, match.Affinity)
		} else {
			fmt.Fprintln(out, "[no match]")
		}
	}
	fmt.Fprintln(out, result.Reply)
	return nil
}
