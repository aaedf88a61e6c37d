package inference

import (
	"fmt"
	"strings"
)

// PromptFormat renders the prefill text for one hole.
type PromptFormat interface {
	Render(system, preprompt, prompt, prior string) string
}

// PromptFormatFunc adapts a function to PromptFormat.
type PromptFormatFunc func(system, preprompt, prompt, prior string) string

func (f PromptFormatFunc) Render(system, preprompt, prompt, prior string) string {
	return f(system, preprompt, prompt, prior)
}

// Llama2 is the [INST] chat format. The prior completion follows [/INST]
// so the model continues it as the assistant turn.
var Llama2 = PromptFormatFunc(func(system, preprompt, prompt, prior string) string {
	var b strings.Builder
	b.WriteString("<<sys>>")
	b.WriteString(system)
	b.WriteString("<</sys>>\n\n[INST]")
	if preprompt != "" {
		b.WriteByte(' ')
		b.WriteString(preprompt)
	}
	b.WriteByte(' ')
	b.WriteString(prompt)
	b.WriteString(" [/INST] ")
	b.WriteString(prior)
	return b.String()
})

var ChatML = PromptFormatFunc(func(system, preprompt, prompt, prior string) string {
	user := prompt
	if preprompt != "" {
		user = preprompt + " " + prompt
	}
	return "<|im_start|>system\n" + system + "<|im_end|>\n" +
		"<|im_start|>user\n" + user + "<|im_end|>\n" +
		"<|im_start|>assistant\n" + prior
})

// Raw concatenates the parts without chat markup, for base models.
var Raw = PromptFormatFunc(func(system, preprompt, prompt, prior string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{system, preprompt, prompt} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n") + "\n\n" + prior
})

func ParsePromptFormat(name string) (PromptFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "llama2", "llama-2", "inst":
		return Llama2, nil
	case "chatml":
		return ChatML, nil
	case "raw", "none":
		return Raw, nil
	}
	return nil, fmt.Errorf("unknown prompt format %q", name)
}
