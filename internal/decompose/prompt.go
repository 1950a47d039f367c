package decompose

// decompositionPrompt is the prompt template for task decomposition.
const decompositionPrompt = `Break this task into subtasks sized for a single agent to complete.

Task:
%s

Return ONLY a JSON array of subtasks with this exact structure (no other text):
[
  {
    "description": "Detailed subtask description",
    "type": "research|implementation|review|analysis|general",
    "capabilities": ["code", "search"],
    "complexity": "low|medium|high|critical",
    "depends_on": [0, 1]
  }
]

Rules:
- depends_on lists the ZERO-BASED INDEXES of subtasks that must finish first
- Use an empty array [] when a subtask has no dependencies
- Subtasks should be as independent as possible to allow parallel execution
- Only add a dependency when one subtask genuinely needs another's output
- capabilities lists the agent capability tags the subtask requires
- Keep the list short: prefer 2-5 focused subtasks over many tiny ones`

// decompositionSystemPrompt frames the model as a planner, not a worker.
const decompositionSystemPrompt = `You are a task planner. You split work into well-scoped subtasks and report them as JSON. You never perform the work yourself and never include prose outside the JSON array.`
