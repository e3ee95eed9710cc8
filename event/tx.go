// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package event

import "time"

const (
	TransactionSubmittedEventType EventType = "transaction.submitted"
	TransactionConfirmedEventType EventType = "transaction.confirmed"
	TransactionFailedEventType    EventType = "transaction.failed"
)

// TransactionSubmittedEvent is published after a transaction is
// accepted by the chain provider.
type TransactionSubmittedEvent struct {
	TxID string
}

// TransactionConfirmedEvent is published once a submitted transaction
// is observed on chain.
type TransactionConfirmedEvent struct {
	TxID    string
	Elapsed time.Duration
}

// TransactionFailedEvent is published when submission is rejected.
type TransactionFailedEvent struct {
	Error string
}
