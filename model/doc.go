// Package model holds the shared data types exchanged between the
// retrieval cache layer and its external collaborators.
package model
