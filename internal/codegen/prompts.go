package codegen

const summarizeDMTEPrompt = `Summarize the research paper below for an engineer who must reimplement it. Organize the summary under exactly these four headings, in this order:

## Data
## Model
## Training
## Evaluation

Under each heading list every concrete detail the paper gives: datasets, preprocessing, splits, architecture, layer sizes, losses, optimizers, schedules, hyperparameters, metrics and evaluation protocol. Keep numbers exactly as written. Return the summary in a markdown code block.

Here is the paper:
<paper>
%s
</paper>`

const summarizeWorkflowPrompt = `Describe the overall workflow of the method in the research paper below: the inputs, the sequence of stages from raw data to reported results, and how the stages connect. Write a short markdown document and return it in a markdown code block.

Here is the paper:
<paper>
%s
</paper>`

const extractConfigPrompt = `Extract every hyperparameter and experimental setting needed to reproduce the research paper below into one YAML configuration file. Use exactly these top-level sections: data, model, training, evaluation. Use the paper's values; when a value is not reported, choose a common default and mark it with a "# assumed" comment. Return only the YAML in a yaml code block.

Here is the paper:
<paper>
%s
</paper>%s`

const frameworkPrompt = `Design the skeleton of a single-file Python implementation of the method summarized below. Define exactly these top-level components:

- class Data: loads and preprocesses the datasets
- class Model: the model architecture
- class Trainer: the training loop
- class Evaluator: metrics and evaluation
- def main(): reads config.yaml and wires the components together

Give every class its methods with signatures and docstrings, and use "pass" for bodies. End the file with an if __name__ == "__main__": guard that calls main(). Return the code in a python code block.

Here is the component summary:
<summary>
%s
</summary>

Here is the overall workflow:
<workflow>
%s
</workflow>%s`

const stepsSystemPrompt = `You annotate a Python code skeleton with implementation steps. For the component you are given, add numbered step comments ("# Step 1: ...") inside each method that say precisely what the method must do, using the paper's details. Do not implement anything and do not rename anything. Return the complete annotated component, and only that component, in a python code block.

Here is the overall workflow of the paper:
<workflow>
%s
</workflow>

Here is the full skeleton:
<framework>
%s
</framework>%s`

const stepsSimpleUserPrompt = `Add step comments to this component:
` + "```python\n%s\n```"

const stepsDetailedUserPrompt = `Add step comments to this component:
` + "```python\n%s\n```" + `

Relevant part of the paper summary:
<summary>
%s
</summary>

Relevant configuration:
<config>
%s
</config>`

const implementSystemPrompt = `You are an expert machine learning engineer implementing a research paper one component at a time. Replace every "pass" body and step comment in the component you are given with a complete, working implementation that follows the paper exactly and reads its hyperparameters from the configuration. Keep the class and method names. Put any new imports at the top of your answer. Return only Python code in a python code block.

Here is the paper:
<paper>
%s
</paper>%s

Here is the configuration file config.yaml:
<config>
%s
</config>

Here is the annotated skeleton of the whole program:
<framework>
%s
</framework>`

const implementUserPrompt = `These imports are already available:
` + "```python\n%s\n```" + `

Implement this component:
` + "```python\n%s\n```"

const experimentPlanPrompt = `Plan the experiments that reproduce the results reported in the research paper below with the given implementation. List each experiment, the settings it varies, the metrics it records and the table or figure it reproduces. Return the plan in a markdown code block.

Here is the paper:
<paper>
%s
</paper>%s

Here is the implementation (main.py):
` + "```python\n%s\n```"

const experimentsPrompt = `Write experiments.py, a Python script that imports the components of main.py and runs every experiment in the plan below, printing and saving the results. Return only the script in a python code block.

Here is the paper:
<paper>
%s
</paper>%s

Here is the implementation (main.py):
` + "```python\n%s\n```" + `

Here is the experiment plan:
<plan>
%s
</plan>`
