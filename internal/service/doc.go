// Package service contains the application services that tie the operation
// engine to its payloads: user registration and login, inbox sync, daily
// report generation and the chat surface. Services own the orchestration;
// stores, the mailbox client and the generator stay behind interfaces.
package service
