// Package council runs the three-stage LLM council deliberation.
//
// Stage one collects independent answers from every member in parallel.
// Stage two shows each member the anonymized answers ("Response A", ...)
// and asks for an evaluation ending in a FINAL RANKING section; the parsed
// rankings are averaged into an aggregate leaderboard. Stage three asks the
// chairman to synthesize the final answer from everything above.
//
// Member failures are tolerated at every stage: a failed member is simply
// left out of that stage's results.
package council
