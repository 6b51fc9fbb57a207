package scheduler

// Quiz and tutorial parameters. These are fixed policy, not learner-derived.
const (
	QuizQuestions           = 10
	QuizDifficulty          = 3
	QuizDurationMinutes     = 10
	QuizPassingScore        = 70.0
	TutorialDurationMinutes = 30
)

// Policy is the number of quizzes and tutorials assigned for a week.
type Policy struct {
	Quizzes   int
	Tutorials int
}

// Total is the batch size the policy asks for.
func (p Policy) Total() int { return p.Quizzes + p.Tutorials }

// PolicyFor returns the batch size for the days left in the week, counting
// today: Monday to Wednesday get the full batch, Thursday to Saturday a
// reduced one and Sunday a catch-up pair.
func PolicyFor(daysLeft int) Policy {
	switch {
	case daysLeft >= 5:
		return Policy{Quizzes: 4, Tutorials: 2}
	case daysLeft >= 2:
		return Policy{Quizzes: 2, Tutorials: 1}
	default:
		return Policy{Quizzes: 1, Tutorials: 1}
	}
}
