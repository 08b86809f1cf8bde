// ABOUTME: Package workflow runs the plan, execute tools, summarize, respond pipeline.
// ABOUTME: Each step sees only its own bounded input through an explicit StepEnv.

// Package workflow implements the four-step generation pipeline.
//
// The steps run strictly in order. Plan decides which tool calls are needed,
// Execute runs them against the user's tool session (concurrently, bounded by
// MaxParallelTools), Summarize compresses the raw tool output, and Respond
// produces the user-facing message. Raw tool output never reaches the respond
// step; it only sees the summary. Every step receives a StepEnv carrying the
// request identity and the character budget it may consume.
//
// A step error aborts the pipeline and is returned wrapped in a *StepError.
// A failing tool call is not a step error: it is recorded as a failed
// ToolResult and handed to the summarizer like any other result.
//
// Run is the one-shot pipeline. Stream repeats plan and execute while the
// planner keeps asking for tools, up to an iteration cap, and streams the
// response through an Emitter.
package workflow
