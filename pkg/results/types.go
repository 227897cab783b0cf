/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package results

// Confidence is the evidentiary strength that a sink is reachable and exploitable
type Confidence string

const (
	// High means the concrete sink payload was resolved
	High    Confidence = "HIGH"
	Medium  Confidence = "MEDIUM"
	Low     Confidence = "LOW"
	Unknown Confidence = "UNKNOWN"
)

// Rank orders confidence levels for filtering, higher is stronger
func (c Confidence) Rank() int {
	switch c {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// ParseConfidence converts a user supplied level, defaulting to Unknown
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case High, Medium, Low:
		return Confidence(s)
	default:
		return Unknown
	}
}

// Complexity describes what an attacker needs in order to exploit a finding
type Complexity string

const (
	ZeroClick           Complexity = "ZERO_CLICK"
	PreviousContributor Complexity = "PREVIOUS_CONTRIBUTOR"
	FollowUp            Complexity = "FOLLOW_UP"
	TOCTOU              Complexity = "TOCTOU"
	BrokenAccess        Complexity = "BROKEN_ACCESS"
)

var complexityExplanations = map[Complexity]string{
	ZeroClick:           "Exploit requires no user interaction, you must still confirm there are no custom permission checks that would prevent the attack.",
	PreviousContributor: "Exploit requires a previous contribution to the repository, or for a maintainer to approve the workflow run for a first-time contributor.",
	FollowUp:            "Exploit requires a maintainer to perform a follow-up action, such as applying a label or approving a gated run, after the malicious content is submitted.",
	TOCTOU:              "Exploit requires updating the pull request between maintainer approval and workflow execution, winning a time-of-check to time-of-use race against a mutable reference.",
	BrokenAccess:        "Exploit requires abusing a broken access control check: the check validates the commenting user, not the author of the code that gets executed.",
}

// Explanation returns the fixed human readable explanation for c
func (c Complexity) Explanation() string {
	if e, ok := complexityExplanations[c]; ok {
		return e
	}
	return "Unknown attack complexity."
}

// IssueType is the vulnerability category of a result
type IssueType string

const (
	PwnRequest        IssueType = "PWN_REQUEST"
	DispatchTOCTOU    IssueType = "DISPATCH_TOCTOU"
	ActionsInjection  IssueType = "ACTIONS_INJECTION"
	PRReviewInjection IssueType = "PR_REVIEW_INJECTION"
	ArtifactPoisoning IssueType = "ARTIFACT_POISONING"
)

// NotDetected is the sink value reported when the payload was not resolved
const NotDetected = "Not Detected"
