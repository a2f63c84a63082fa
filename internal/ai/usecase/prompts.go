package usecase

import (
	"fmt"
	"strings"

	aidomain "fileflow-backend/internal/ai/domain"
	"fileflow-backend/internal/files/classifier"
)

const maxPromptBody = 6000

func emailBlock(in aidomain.EmailContent) string {
	body := in.Body
	if len(body) > maxPromptBody {
		body = body[:maxPromptBody]
	}
	return fmt.Sprintf("From: %s\nSubject: %s\n\n%s", in.From, in.Subject, body)
}

func summaryPrompt(in aidomain.EmailContent) string {
	return `You are an email assistant. Summarize the email below in at most two short sentences.
Mention any deadline or required action. Reply with the summary only.

EMAIL:
` + emailBlock(in)
}

func repliesPrompt(in aidomain.EmailContent, count int) string {
	return fmt.Sprintf(`You are an email assistant. Write %d distinct, short, polite replies the recipient could send to the email below.
Return JSON: {"replies": ["...", "..."]}

EMAIL:
%s`, count, emailBlock(in))
}

func actionItemsPrompt(in aidomain.EmailContent) string {
	return `Extract the concrete action items the recipient must do from the email below.
Return JSON: {"items": [{"task": "...", "priority": "High|Medium|Low", "due_date": "YYYY-MM-DD or null"}]}
Return {"items": []} when there is nothing to do.

EMAIL:
` + emailBlock(in)
}

func actionChecklistPrompt(in aidomain.EmailContent) string {
	return `List the action items the recipient must do from the email below as a Markdown checklist,
one "- [ ] task" per line. If there is nothing to do answer exactly "No specific action items detected".

EMAIL:
` + emailBlock(in)
}

func intentPrompt(in aidomain.EmailContent) string {
	return `Classify the intent of the email below as one of INVOICE, MEETING, CONTRACT or INFO.
Return JSON: {"type": "INVOICE|MEETING|CONTRACT|INFO", "confidence": 0.0-1.0, "details": "amount, date or party if any"}

EMAIL:
` + emailBlock(in)
}

func classifyPrompt(in classifier.Input) string {
	return fmt.Sprintf(`Classify this email attachment into exactly one category: Finance, Legal, Work or Personal.
Return JSON: {"category": "...", "confidence": 0.0-1.0}

Filename: %s
Subject: %s
From: %s
Snippet: %s`, in.Filename, in.Subject, in.From, in.Snippet)
}

func recapPrompt(emails []aidomain.RecapEmail) string {
	var sb strings.Builder
	sb.WriteString("Write a short friendly recap (max 3 sentences) of these unread emails, highlighting anything urgent.\n\n")
	for i, e := range emails {
		fmt.Fprintf(&sb, "%d. From %s: %s - %s\n", i+1, e.From, e.Subject, e.Snippet)
	}
	return sb.String()
}

func chatPrompt(req aidomain.ChatRequest) string {
	ctx := req.Context
	if len(ctx) > maxPromptBody {
		ctx = ctx[:maxPromptBody]
	}
	var sb strings.Builder
	sb.WriteString("Answer the question using the context below. If the context does not contain the answer, say so.\n\n")
	if req.FileName != "" {
		fmt.Fprintf(&sb, "Document: %s\n", req.FileName)
	}
	fmt.Fprintf(&sb, "CONTEXT:\n%s\n\nQUESTION: %s", ctx, req.Query)
	return sb.String()
}
